package protocol

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/config"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/core"
)

// maxSuggestions caps "Did you mean" hints.
const maxSuggestions = 5

// Tunables is the configuration backend for get and set.
type Tunables interface {
	Get(name string) (string, string, error)
	Set(name, value string) (string, string, error)
}

// StatsSource provides the counters reported by the stats command.
type StatsSource interface {
	Stats() core.Stats
	ResetHighWater()
}

type command struct {
	name     string
	synopsis string
	usage    string
	category string
}

var commands = []command{
	{"help", "Show help for commands or tunables", "help [<command>|tunables]", "core"},
	{"stats", "Print running metrics", "stats", "core"},
	{"get", "Read a tunable", "get <param>", "tunables"},
	{"set", "Set a tunable", "set <param> <value>", "tunables"},
}

// Response is the output of one command.
type Response struct {
	Lines []string
	// ResendHeader is set when the data units changed.
	ResendHeader bool
}

// Commands executes command lines.
type Commands struct {
	tunables Tunables
	stats    StatsSource
}

// NewCommands returns a command handler. stats may be nil.
func NewCommands(tunables Tunables, stats StatsSource) *Commands {
	return &Commands{tunables: tunables, stats: stats}
}

// Handle executes one line. Blank lines produce no output.
func (c *Commands) Handle(line string) Response {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Response{}
	}
	cmd, args := fields[0], fields[1:]

	switch {
	case strings.EqualFold(cmd, "help") || cmd == "?":
		return c.help(arg(args, 0))
	case strings.EqualFold(cmd, "stats"):
		return c.statsReport()
	case strings.EqualFold(cmd, "get"):
		return c.get(args)
	case strings.EqualFold(cmd, "set"):
		return c.set(args)
	default:
		log.Printf("protocol: unknown command %q", cmd)
		return Response{Lines: []string{
			"ERROR: unknown command",
			StatusLine(StatusUnknownCommand, cmd),
		}}
	}
}

func (c *Commands) get(args []string) Response {
	if len(args) < 1 {
		return errorResponse(StatusInvalidParam, "get requires <param>")
	}
	_, value, err := c.tunables.Get(args[0])
	if err != nil {
		return errResponse(err)
	}
	return Response{Lines: []string{fmt.Sprintf("get: %s = %s", args[0], value)}}
}

func (c *Commands) set(args []string) Response {
	if len(args) < 2 {
		return errorResponse(StatusInvalidParam, "set requires <param> and <value>")
	}
	name, value, err := c.tunables.Set(args[0], args[1])
	if err != nil && !isSaveError(err) {
		return errResponse(err)
	}

	resp := Response{
		Lines:        []string{fmt.Sprintf("set: %s = %s", args[0], value)},
		ResendHeader: name == "dataUnits",
	}
	if err != nil {
		log.Printf("protocol: save after set %s: %v", name, err)
		resp.Lines = append(resp.Lines, StatusLine(StatusInternalError, "save failed"))
	}
	return resp
}

func (c *Commands) statsReport() Response {
	if c.stats == nil {
		return errorResponse(StatusInternalError, "stats unavailable")
	}
	st := c.stats.Stats()
	c.stats.ResetHighWater()
	return Response{Lines: []string{StatusLine(StatusProgressUpdate, FormatStats(st))}}
}

// FormatStats renders the stats command payload.
func FormatStats(st core.Stats) string {
	fill := max(st.IRFill, st.PPSFill, st.SwingFill)
	d := st.Discipline
	return fmt.Sprintf("fill=%d,drop=%d,ign=%d,swings=%d,state=%s,R=%d,J=%d,corr=%d",
		fill, st.Dropped, st.Ignored, st.Swings, d.State, d.Metrics.RPpm, d.Metrics.JPpm, d.Correction.BlendPpm)
}

func (c *Commands) help(topic string) Response {
	var lines []string
	switch {
	case topic == "":
		lines = append(lines, "Commands: name - synopsis")
		for _, cmd := range commands {
			lines = append(lines, fmt.Sprintf("  %s - %s", cmd.name, cmd.synopsis))
		}
		lines = append(lines, "Tip: 'help <command>' or 'help tunables'")
	case strings.EqualFold(topic, "tunables"):
		lines = append(lines, "Tunables (current / example usage)")
		for _, p := range config.Params() {
			_, value, err := c.tunables.Get(p.Name)
			if err != nil {
				value = "?"
			}
			lines = append(lines, fmt.Sprintf("  %s: %s    e.g. `%s` (%s)", p.Name, value, p.Example, p.Help))
		}
	default:
		for _, cmd := range commands {
			if strings.EqualFold(topic, cmd.name) {
				return Response{Lines: []string{
					"name : " + cmd.name,
					"usage: " + cmd.usage,
					"desc : " + cmd.synopsis,
					"cat  : " + cmd.category,
				}}
			}
		}
		lines = append(lines, "No such command: "+topic, "Did you mean:")
		lines = append(lines, suggest(topic)...)
	}
	return Response{Lines: lines}
}

func suggest(prefix string) []string {
	var out []string
	p := strings.ToLower(prefix)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd.name, p) {
			out = append(out, "  "+cmd.name)
			if len(out) >= maxSuggestions {
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, "  (no close matches)")
	}
	return out
}

func errResponse(err error) Response {
	switch {
	case errors.Is(err, config.ErrUnknownParam):
		return errorResponse(StatusInvalidParam, "unknown parameter")
	case errors.Is(err, config.ErrInvalidValue):
		return errorResponse(StatusInvalidValue, err.Error())
	default:
		return errorResponse(StatusInternalError, err.Error())
	}
}

func errorResponse(code StatusCode, text string) Response {
	return Response{Lines: []string{"ERROR: " + text, StatusLine(code, text)}}
}

func isSaveError(err error) bool {
	return !errors.Is(err, config.ErrUnknownParam) && !errors.Is(err, config.ErrInvalidValue)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
