package db

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// CommandParser parses one REPL command and runs it against the Engine
type CommandParser struct {
	Engine *Engine
	Output io.Writer
}

func NewCommandParser(engine *Engine, output io.Writer) *CommandParser {
	return &CommandParser{Engine: engine, Output: output}
}

const intArg = `(-?\d+)`

var (
	reHelp        = regexp.MustCompile(`(?i)^help$`)
	reCreateIndex = regexp.MustCompile(`(?i)^create\s+index\s+(\w+)$`)
	reDropIndex   = regexp.MustCompile(`(?i)^drop\s+index\s+(\w+)$`)
	reShowIndexes = regexp.MustCompile(`(?i)^show\s+indexes$`)
	reInsert      = regexp.MustCompile(`(?i)^insert\s+(\w+)\s+` + intArg + `\s+` + intArg + `$`)
	reGet         = regexp.MustCompile(`(?i)^get\s+(\w+)\s+` + intArg + `$`)
	reRemove      = regexp.MustCompile(`(?i)^remove\s+(\w+)\s+` + intArg + `\s+` + intArg + `$`)
	reScan        = regexp.MustCompile(`(?i)^scan\s+(\w+)$`)
	reDepth       = regexp.MustCompile(`(?i)^depth\s+(\w+)$`)
	reVerify      = regexp.MustCompile(`(?i)^verify\s+(\w+)$`)
	reFlush       = regexp.MustCompile(`(?i)^flush$`)
	reStats       = regexp.MustCompile(`(?i)^stats$`)
)

// ParseAndExecute runs one command line. Blank lines are ignored.
func (p *CommandParser) ParseAndExecute(line string) error {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, ";")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch {
	case reHelp.MatchString(line):
		p.printHelp()
		return nil

	case reCreateIndex.MatchString(line):
		m := reCreateIndex.FindStringSubmatch(line)
		if err := p.Engine.CreateIndex(m[1]); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Index created.")
		return nil

	case reDropIndex.MatchString(line):
		m := reDropIndex.FindStringSubmatch(line)
		if err := p.Engine.DropIndex(m[1]); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Index dropped.")
		return nil

	case reShowIndexes.MatchString(line):
		fmt.Fprintln(p.Output, "Indexes:")
		for _, name := range p.Engine.ListIndexes() {
			fmt.Fprintln(p.Output, "- "+name)
		}
		return nil

	case reInsert.MatchString(line):
		m := reInsert.FindStringSubmatch(line)
		key, value, err := parsePair(m[2], m[3])
		if err != nil {
			return err
		}
		if err := p.Engine.Insert(m[1], key, value); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "OK, 1 pair inserted.")
		return nil

	case reGet.MatchString(line):
		m := reGet.FindStringSubmatch(line)
		key, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return fmt.Errorf("key must be an int64: %w", err)
		}
		return p.handleGet(m[1], key)

	case reRemove.MatchString(line):
		m := reRemove.FindStringSubmatch(line)
		key, value, err := parsePair(m[2], m[3])
		if err != nil {
			return err
		}
		if err := p.Engine.Remove(m[1], key, value); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "OK, 1 pair removed.")
		return nil

	case reScan.MatchString(line):
		return p.handleScan(reScan.FindStringSubmatch(line)[1])

	case reDepth.MatchString(line):
		m := reDepth.FindStringSubmatch(line)
		depth, err := p.Engine.GlobalDepth(m[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(p.Output, "global depth: %d (%d directory slots)\n", depth, 1<<depth)
		return nil

	case reVerify.MatchString(line):
		m := reVerify.FindStringSubmatch(line)
		if err := p.Engine.Verify(m[1]); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Directory OK.")
		return nil

	case reFlush.MatchString(line):
		if err := p.Engine.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(p.Output, "Flushed.")
		return nil

	case reStats.MatchString(line):
		p.printStats()
		return nil

	default:
		return fmt.Errorf("syntax error or unknown command: %s", line)
	}
}

func parsePair(keyStr, valueStr string) (int64, int64, error) {
	key, err := strconv.ParseInt(keyStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("key must be an int64: %w", err)
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("value must be an int64: %w", err)
	}
	return key, value, nil
}

func (p *CommandParser) printHelp() {
	fmt.Fprintln(p.Output, "--- pagestore help ---")
	fmt.Fprintln(p.Output, "1.  create index <name>")
	fmt.Fprintln(p.Output, "2.  drop index <name>")
	fmt.Fprintln(p.Output, "3.  show indexes")
	fmt.Fprintln(p.Output, "4.  insert <index> <key> <value>")
	fmt.Fprintln(p.Output, "5.  get <index> <key>")
	fmt.Fprintln(p.Output, "6.  remove <index> <key> <value>")
	fmt.Fprintln(p.Output, "7.  scan <index>")
	fmt.Fprintln(p.Output, "8.  depth <index>")
	fmt.Fprintln(p.Output, "9.  verify <index>")
	fmt.Fprintln(p.Output, "10. flush")
	fmt.Fprintln(p.Output, "11. stats")
	fmt.Fprintln(p.Output, "12. quit | exit")
}

func (p *CommandParser) handleGet(name string, key int64) error {
	values, err := p.Engine.Get(name, key)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		fmt.Fprintln(p.Output, "Empty set.")
		return nil
	}
	for _, v := range values {
		fmt.Fprintf(p.Output, "[%d] %d\n", key, v)
	}
	fmt.Fprintf(p.Output, "(%s rows)\n", humanize.Comma(int64(len(values))))
	return nil
}

func (p *CommandParser) handleScan(name string) error {
	pairs, err := p.Engine.Scan(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.Output, "--- %s ---\n", name)
	for _, pair := range pairs {
		fmt.Fprintf(p.Output, "[%d] %d\n", pair.Key, pair.Value)
	}
	fmt.Fprintf(p.Output, "(%s rows)\n", humanize.Comma(int64(len(pairs))))
	return nil
}

func (p *CommandParser) printStats() {
	s := p.Engine.Stats()
	fmt.Fprintf(p.Output, "indexes:        %d\n", s.Indexes)
	fmt.Fprintf(p.Output, "buffer pool:    %s frames in %d instances (%s)\n",
		humanize.Comma(int64(s.PoolFrames)), s.Instances, humanize.IBytes(s.PoolBytes))
	fmt.Fprintf(p.Output, "resident pages: %s (%s free frames)\n",
		humanize.Comma(int64(s.ResidentPages)), humanize.Comma(int64(s.FreeFrames)))
	fmt.Fprintf(p.Output, "disk reads:     %s\n", humanize.Comma(s.DiskReads))
	fmt.Fprintf(p.Output, "disk writes:    %s\n", humanize.Comma(s.DiskWrites))
	if s.FileBytes > 0 {
		fmt.Fprintf(p.Output, "file size:      %s\n", humanize.IBytes(s.FileBytes))
	}
}
