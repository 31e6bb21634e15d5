package flowkernel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	projectModuleRe     = regexp.MustCompile(`^ *MODULE:([0-9]+):(.*)$`)
	projectConnectionRe = regexp.MustCompile(`^ *CONNECTION:\(([0-9]+),(.*)\)->\(([0-9]+),(.*)\)$`)
	projectPropertyRe   = regexp.MustCompile(`^ *PROPERTY:\(([0-9]+),(.*)\)=(.*)$`)
	projectCommentRe    = regexp.MustCompile(`^ *//.*$`)
)

// ProjectModule is a MODULE line: a module with a file-local id.
type ProjectModule struct {
	ID        uint64
	Prototype string
	Line      int
}

// ProjectConnection is a CONNECTION line: output (FromID, Output) feeds input
// (ToID, Input).
type ProjectConnection struct {
	FromID uint64
	Output string
	ToID   uint64
	Input  string
	Line   int
}

// ProjectProperty is a PROPERTY line.
type ProjectProperty struct {
	ID    uint64
	Name  string
	Value string
	Line  int
}

// Project is a parsed project file: the replayable construction sequence of a
// graph.
type Project struct {
	Modules     []ProjectModule
	Connections []ProjectConnection
	Properties  []ProjectProperty
}

// ParseProject reads a project file. Blank lines and // comments are ignored;
// lines that match no statement are logged and skipped. Only read errors are
// returned.
func ParseProject(r io.Reader, logger Logger) (*Project, error) {
	logger = loggerOrNop(logger)
	p := &Project{}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || projectCommentRe.MatchString(line) {
			continue
		}
		if err := p.parseLine(line, lineNumber); err != nil {
			logger.Warn("Skipping project line", "line", lineNumber, "text", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	return p, nil
}

func (p *Project) parseLine(line string, lineNumber int) error {
	if m := projectModuleRe.FindStringSubmatch(line); m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: module id: %w", ErrProjectLine, err)
		}
		p.Modules = append(p.Modules, ProjectModule{ID: id, Prototype: m[2], Line: lineNumber})
		return nil
	}
	if m := projectConnectionRe.FindStringSubmatch(line); m != nil {
		from, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: module id: %w", ErrProjectLine, err)
		}
		to, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: module id: %w", ErrProjectLine, err)
		}
		p.Connections = append(p.Connections, ProjectConnection{FromID: from, Output: m[2], ToID: to, Input: m[4], Line: lineNumber})
		return nil
	}
	if m := projectPropertyRe.FindStringSubmatch(line); m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: module id: %w", ErrProjectLine, err)
		}
		p.Properties = append(p.Properties, ProjectProperty{ID: id, Name: m[2], Value: m[3], Line: lineNumber})
		return nil
	}
	return ErrProjectLine
}

// ProjectResult reports what applying a project produced.
type ProjectResult struct {
	// Modules maps file-local ids to the created modules.
	Modules map[uint64]*Module
	// Skipped counts entries that could not be applied.
	Skipped int
}

// Apply builds the project in c using prototypes from f. Modules are created
// and added first, then the loader waits for each of them to become ready,
// sets properties and finally makes the connections. Entries referring to
// unknown prototypes, ids, properties or connectors are logged and skipped; a
// module that crashes before it is ready is dropped with everything that
// refers to it. Only a context error aborts the load.
func (p *Project) Apply(ctx context.Context, c *Container, f *Factory) (*ProjectResult, error) {
	logger := c.logger
	res := &ProjectResult{Modules: make(map[uint64]*Module)}
	order := make([]uint64, 0, len(p.Modules))

	for _, pm := range p.Modules {
		if _, dup := res.Modules[pm.ID]; dup {
			logger.Error("Duplicate module id in project, skipping", "line", pm.Line, "id", pm.ID)
			res.Skipped++
			continue
		}
		m, err := f.Create(pm.Prototype)
		if err != nil {
			logger.Error("Cannot create project module, skipping", "line", pm.Line, "id", pm.ID, "prototype", pm.Prototype, "error", err)
			res.Skipped++
			continue
		}
		res.Modules[pm.ID] = m
		order = append(order, pm.ID)
	}

	for _, id := range order {
		if err := c.Add(res.Modules[id]); err != nil {
			logger.Error("Cannot add project module, skipping", "id", id, "error", err)
			delete(res.Modules, id)
			res.Skipped++
		}
	}

	// wait after adding all so a slow module does not delay starting the others
	for _, id := range order {
		m, ok := res.Modules[id]
		if !ok {
			continue
		}
		if err := m.WaitReady(ctx); err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			logger.Warn("Project module failed before it became ready; connections and properties relating to it will fail",
				"id", id, "module", m.String(), "error", err)
			delete(res.Modules, id)
		}
	}

	for _, pp := range p.Properties {
		m, ok := res.Modules[pp.ID]
		if !ok {
			logger.Error("No module for property, skipping", "line", pp.Line, "id", pp.ID, "property", pp.Name)
			res.Skipped++
			continue
		}
		prop, ok := m.Properties().Find(pp.Name)
		if !ok {
			logger.Error("Module has no such property, skipping", "line", pp.Line, "module", m.String(), "property", pp.Name,
				"error", ErrPropertyNotFound)
			res.Skipped++
			continue
		}
		if err := prop.SetString(pp.Value); err != nil {
			logger.Error("Cannot set property, skipping", "line", pp.Line, "module", m.String(), "property", pp.Name, "error", err)
			res.Skipped++
		}
	}

	for _, pc := range p.Connections {
		if err := connectProjectEntry(res.Modules, pc); err != nil {
			logger.Error("Cannot connect, skipping", "line", pc.Line,
				"connection", fmt.Sprintf("(%d,%s)->(%d,%s)", pc.FromID, pc.Output, pc.ToID, pc.Input), "error", err)
			res.Skipped++
		}
	}

	logger.Info("Project applied", "container", c.name, "modules", len(res.Modules), "skipped", res.Skipped)
	return res, nil
}

func connectProjectEntry(modules map[uint64]*Module, pc ProjectConnection) error {
	src, ok := modules[pc.FromID]
	if !ok {
		return fmt.Errorf("module id %d: %w", pc.FromID, ErrModuleNotFound)
	}
	dst, ok := modules[pc.ToID]
	if !ok {
		return fmt.Errorf("module id %d: %w", pc.ToID, ErrModuleNotFound)
	}
	out, err := src.Output(pc.Output)
	if err != nil {
		return err
	}
	in, err := dst.Input(pc.Input)
	if err != nil {
		return err
	}
	return out.Connect(in)
}

// WriteProject writes the modules of c, their properties and all connections
// between them in project file format. Module ids are positions in the
// container's insertion order.
func WriteProject(w io.Writer, c *Container) error {
	bw := bufio.NewWriter(w)
	modules := c.Modules()
	ids := make(map[*Module]int, len(modules))

	fmt.Fprintf(bw, "// Modules and Properties\n\n")
	for i, m := range modules {
		ids[m] = i
		fmt.Fprintf(bw, "MODULE:%d:%s\n", i, m.Prototype())
		for _, p := range m.Properties().List() {
			fmt.Fprintf(bw, "PROPERTY:(%d,%s)=%s\n", i, p.Name(), p.String())
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintf(bw, "// Connections\n")
	for _, m := range modules {
		for _, out := range m.Outputs() {
			for _, peer := range out.Peers() {
				to, ok := ids[peer.Module()]
				if !ok {
					continue
				}
				fmt.Fprintf(bw, "CONNECTION:(%d,%s)->(%d,%s)\n", ids[m], out.Name(), to, peer.Name())
			}
		}
	}
	return bw.Flush()
}
