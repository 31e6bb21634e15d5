package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/flowkernel"
	"github.com/GoCodeAlone/flowkernel/prototypes"
)

// ErrProjectInvalid is returned by validate when the project has problems.
var ErrProjectInvalid = errors.New("project file has problems")

// ProjectIssue is a problem found in a project file.
type ProjectIssue struct {
	Line    int
	Message string
}

func (i ProjectIssue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <project-file>",
		Short: "Check a project file against the available prototypes",
		Long: `Parse a project file and report statements that refer to unknown
prototypes, undeclared module ids, connectors or properties. Nothing is
started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := global.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			issues, err := ValidateProject(f, prototypes.NewFactory(), logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintln(out, issue)
			}
			if len(issues) > 0 {
				return fmt.Errorf("%w: %d issue(s)", ErrProjectInvalid, len(issues))
			}
			fmt.Fprintf(out, "%s: OK\n", args[0])
			return nil
		},
	}
}

// ValidateProject parses r and checks every statement against f.
func ValidateProject(r io.Reader, f *flowkernel.Factory, logger flowkernel.Logger) ([]ProjectIssue, error) {
	project, err := flowkernel.ParseProject(r, logger)
	if err != nil {
		return nil, err
	}

	var issues []ProjectIssue
	protos := make(map[uint64]flowkernel.Prototype, len(project.Modules))
	for _, pm := range project.Modules {
		if _, dup := protos[pm.ID]; dup {
			issues = append(issues, ProjectIssue{pm.Line, fmt.Sprintf("module id %d declared twice", pm.ID)})
			continue
		}
		proto, err := f.Prototype(pm.Prototype)
		if err != nil {
			issues = append(issues, ProjectIssue{pm.Line, fmt.Sprintf("unknown prototype %q", pm.Prototype)})
			continue
		}
		protos[pm.ID] = proto
	}

	for _, pp := range project.Properties {
		proto, ok := protos[pp.ID]
		if !ok {
			issues = append(issues, ProjectIssue{pp.Line, fmt.Sprintf("property %q refers to unknown module id %d", pp.Name, pp.ID)})
			continue
		}
		if !hasProperty(proto, pp.Name) {
			issues = append(issues, ProjectIssue{pp.Line, fmt.Sprintf("prototype %q has no property %q", proto.Name, pp.Name)})
		}
	}

	for _, pc := range project.Connections {
		from, okFrom := protos[pc.FromID]
		to, okTo := protos[pc.ToID]
		switch {
		case !okFrom:
			issues = append(issues, ProjectIssue{pc.Line, fmt.Sprintf("connection refers to unknown module id %d", pc.FromID)})
		case !okTo:
			issues = append(issues, ProjectIssue{pc.Line, fmt.Sprintf("connection refers to unknown module id %d", pc.ToID)})
		default:
			out, okOut := findConnector(from.Outputs, pc.Output)
			in, okIn := findConnector(to.Inputs, pc.Input)
			switch {
			case !okOut:
				issues = append(issues, ProjectIssue{pc.Line, fmt.Sprintf("prototype %q has no output %q", from.Name, pc.Output)})
			case !okIn:
				issues = append(issues, ProjectIssue{pc.Line, fmt.Sprintf("prototype %q has no input %q", to.Name, pc.Input)})
			case pc.FromID == pc.ToID:
				issues = append(issues, ProjectIssue{pc.Line, "module connected to itself"})
			case out.Type != in.Type:
				issues = append(issues, ProjectIssue{pc.Line, fmt.Sprintf("type mismatch: %s -> %s", out.Type, in.Type)})
			}
		}
	}
	return issues, nil
}

func hasProperty(p flowkernel.Prototype, name string) bool {
	for _, prop := range p.Properties {
		if prop.Name == name {
			return true
		}
	}
	return false
}

func findConnector(list []flowkernel.ConnectorInfo, name string) (flowkernel.ConnectorInfo, bool) {
	for _, ci := range list {
		if ci.Name == name {
			return ci, true
		}
	}
	return flowkernel.ConnectorInfo{}, false
}
