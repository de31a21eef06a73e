// Command matrixdump prints the role permission matrix and the status
// transition tables as one YAML document.
//
//	matrixdump                 # everything
//	matrixdump -entity ECO     # one entity type
//	matrixdump -role QUALITY   # one role
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"changeflow.io/changeflow/internal/domain"
	"changeflow.io/changeflow/internal/governance/permission"
	"changeflow.io/changeflow/internal/governance/workflow"
)

// Document is the exported capability set.
type Document struct {
	Roles     []RoleEntry     `yaml:"roles"`
	Workflows []WorkflowEntry `yaml:"workflows"`
}

// RoleEntry lists one role's permissions.
type RoleEntry struct {
	Role        domain.Role             `yaml:"role"`
	Permissions []permission.Permission `yaml:"permissions"`
}

// WorkflowEntry lists one entity type's statuses and edges.
type WorkflowEntry struct {
	EntityType  domain.EntityType     `yaml:"entity_type"`
	Statuses    []domain.Status       `yaml:"statuses"`
	Terminal    []domain.Status       `yaml:"terminal"`
	Transitions []workflow.Transition `yaml:"transitions"`
}

func main() {
	entity := flag.String("entity", "", "limit output to one entity type (ECR, ECO, ECN)")
	role := flag.String("role", "", "limit output to one role")
	flag.Parse()

	if err := run(os.Stdout, *entity, *role); err != nil {
		fmt.Fprintf(os.Stderr, "matrixdump: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, entityFilter, roleFilter string) error {
	doc, err := build(permission.NewMatrix(), workflow.NewMachine(), entityFilter, roleFilter)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func build(m *permission.Matrix, machine *workflow.Machine, entityFilter, roleFilter string) (*Document, error) {
	entities := domain.AllEntityTypes()
	if entityFilter != "" {
		t, err := domain.ParseEntityType(entityFilter)
		if err != nil {
			return nil, err
		}
		entities = []domain.EntityType{t}
	}

	roles := domain.AllRoles()
	if roleFilter != "" {
		r := domain.ParseRole(roleFilter)
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q", roleFilter)
		}
		roles = []domain.Role{r}
	}

	doc := &Document{}
	for _, r := range roles {
		var perms []permission.Permission
		for _, p := range m.Permissions(r) {
			for _, t := range entities {
				if p.Entity == t {
					perms = append(perms, p)
				}
			}
		}
		doc.Roles = append(doc.Roles, RoleEntry{Role: r, Permissions: perms})
	}

	for _, t := range entities {
		entry := WorkflowEntry{
			EntityType:  t,
			Statuses:    domain.Statuses(t),
			Terminal:    []domain.Status{},
			Transitions: machine.Table(t),
		}
		for _, s := range entry.Statuses {
			if machine.IsTerminal(t, s) {
				entry.Terminal = append(entry.Terminal, s)
			}
		}
		doc.Workflows = append(doc.Workflows, entry)
	}
	return doc, nil
}
