package tools

import (
	"errors"
	"sort"
	"strings"

	"opsdesk/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Version identifies the registry as a whole. Prompt rendering, engine
// declarations and the interpreter's mapping table all derive from this one
// registry, so any change here ships to all of them together.
const Version = "2026.10"

const (
	PerformAction = "perform_action"
	PerformBatch  = "perform_batch"
	OfferChoices  = "offer_choices"
	AskQuestion   = "ask_question"
	ThinkStep     = "think_step"
)

var (
	ErrUnknownKind    = errors.New("unknown action kind")
	ErrInvalidPayload = errors.New("invalid payload")
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	// Format and Pattern constrain string values, e.g. "date" or an HH:MM
	// expression.
	Format  string
	Pattern string
	// Items describes array elements; Properties describes object members.
	Items      *Param
	Properties []Param
}

// Capability is one callable the reasoning engine may invoke.
type Capability struct {
	Name        string
	Description string
	Params      []Param
}

// KindSchema declares the payload accepted by one action kind.
type KindSchema struct {
	Kind        models.ActionKind
	Description string
	Fields      []Param
}

type Contract struct {
	Version      string
	Capabilities []Capability
	Kinds        []KindSchema
	byKind       map[models.ActionKind]KindSchema
	schemas      map[models.ActionKind]*jsonschema.Schema
}

var (
	Priorities    = []string{"low", "medium", "high", "urgent"}
	TaskStatuses  = []string{"todo", "in_progress", "done"}
	ProjectStatus = []string{"active", "on_hold", "completed"}
	QueryEntities = []string{
		string(models.EntityTask),
		string(models.EntityProject),
		string(models.EntityTeamMember),
		string(models.EntityDocument),
	}
)

const clockPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`

func taskFields(requireID, requireTitle bool) []Param {
	fields := []Param{
		{Name: "title", Type: TypeString, Description: "Short title of the item", Required: requireTitle},
		{Name: "description", Type: TypeString, Description: "Free text details"},
		{Name: "due_date", Type: TypeString, Description: "Date as YYYY-MM-DD", Format: "date"},
		{Name: "start_time", Type: TypeString, Description: "Start clock time as HH:MM (24h)", Pattern: clockPattern},
		{Name: "end_time", Type: TypeString, Description: "End clock time as HH:MM (24h)", Pattern: clockPattern},
		{Name: "priority", Type: TypeString, Enum: Priorities},
		{Name: "status", Type: TypeString, Enum: TaskStatuses},
		{Name: "project_id", Type: TypeString, Description: "Id of the related project"},
		{Name: "assignee_id", Type: TypeString, Description: "Id of the responsible team member"},
	}
	if requireID {
		fields = append([]Param{{Name: "id", Type: TypeString, Description: "Id of the existing task", Required: true}}, fields...)
	}
	return fields
}

func projectFields(requireID, requireName bool) []Param {
	fields := []Param{
		{Name: "name", Type: TypeString, Description: "Project or client name", Required: requireName},
		{Name: "client", Type: TypeString, Description: "Client organisation"},
		{Name: "status", Type: TypeString, Enum: ProjectStatus},
		{Name: "description", Type: TypeString},
	}
	if requireID {
		fields = append([]Param{{Name: "id", Type: TypeString, Description: "Id of the existing project", Required: true}}, fields...)
	}
	return fields
}

func idOnly(what string) []Param {
	return []Param{{Name: "id", Type: TypeString, Description: "Id of the " + what + " to delete", Required: true}}
}

// Default returns the registry shipped with this version.
func Default() *Contract {
	kinds := []KindSchema{
		{Kind: models.KindCreateTask, Description: "Create a scheduling item (task or calendar block)", Fields: taskFields(false, true)},
		{Kind: models.KindUpdateTask, Description: "Change fields of an existing scheduling item", Fields: taskFields(true, false)},
		{Kind: models.KindDeleteTask, Description: "Remove a scheduling item", Fields: idOnly("task")},
		{Kind: models.KindCreateProject, Description: "Create a project/client record", Fields: projectFields(false, true)},
		{Kind: models.KindUpdateProject, Description: "Change fields of a project/client record", Fields: projectFields(true, false)},
		{Kind: models.KindDeleteProject, Description: "Remove a project/client record", Fields: idOnly("project")},
		{Kind: models.KindQuery, Description: "Look up records; later actions may use the result", Fields: []Param{
			{Name: "entity", Type: TypeString, Enum: QueryEntities, Required: true},
			{Name: "status", Type: TypeString, Description: "Only records with this status"},
			{Name: "project_id", Type: TypeString},
			{Name: "assignee_id", Type: TypeString},
			{Name: "limit", Type: TypeInteger},
		}},
		{Kind: models.KindSendMessage, Description: "Send a message to a team member", Fields: []Param{
			{Name: "recipient_id", Type: TypeString, Description: "Team member id", Required: true},
			{Name: "body", Type: TypeString, Required: true},
		}},
	}
	return New(kinds)
}

// New builds a contract from kind schemas. It panics if a kind's payload
// schema does not compile, since the registry is fixed at build time.
func New(kinds []KindSchema) *Contract {
	c := &Contract{
		Version: Version,
		Kinds:   kinds,
		byKind:  make(map[models.ActionKind]KindSchema, len(kinds)),
	}
	for _, k := range kinds {
		c.byKind[k.Kind] = k
	}
	schemas, err := compileSchemas(kinds)
	if err != nil {
		panic(err)
	}
	c.schemas = schemas
	c.Capabilities = buildCapabilities(c)
	return c
}

func buildCapabilities(c *Contract) []Capability {
	kindNames := make([]string, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		kindNames = append(kindNames, string(k.Kind))
	}
	payload := Param{
		Name:        "payload",
		Type:        TypeObject,
		Description: "Fields for the chosen action, see the action reference",
		Properties:  c.payloadUnion(),
	}
	actionParam := Param{Name: "action", Type: TypeString, Enum: kindNames, Required: true}
	actionObject := Param{
		Type:       TypeObject,
		Properties: []Param{actionParam, withRequired(payload)},
	}

	return []Capability{
		{
			Name:        PerformAction,
			Description: "Execute exactly one action against the workspace",
			Params: []Param{
				actionParam,
				withRequired(payload),
				{Name: "message", Type: TypeString, Description: "Confirmation shown to the user", Required: true},
			},
		},
		{
			Name:        PerformBatch,
			Description: "Execute several actions from one request, in the order given",
			Params: []Param{
				{Name: "actions", Type: TypeArray, Items: &actionObject, Required: true},
				{Name: "summary", Type: TypeString, Description: "Confirmation shown to the user", Required: true},
			},
		},
		{
			Name:        OfferChoices,
			Description: "The request is ambiguous; offer options and wait for the user to pick one",
			Params: []Param{
				{Name: "message", Type: TypeString, Required: true},
				{Name: "options", Type: TypeArray, Required: true, Items: &Param{
					Type: TypeObject,
					Properties: []Param{
						{Name: "label", Type: TypeString, Required: true},
						actionParam,
						withRequired(payload),
					},
				}},
			},
		},
		{
			Name:        AskQuestion,
			Description: "Required information is missing; ask the user before doing anything",
			Params: []Param{
				{Name: "message", Type: TypeString, Required: true},
				{Name: "context", Type: TypeString, Description: "What is missing and why"},
			},
		},
		{
			Name:        ThinkStep,
			Description: "Record reasoning and optionally one next action whose result you need before answering",
			Params: []Param{
				{Name: "thought", Type: TypeString, Required: true},
				{Name: "action", Type: TypeString, Enum: kindNames},
				payload,
			},
		},
	}
}

func withRequired(p Param) Param {
	p.Required = true
	return p
}

// payloadUnion merges the fields of every kind, none required, so engines
// that need declared object members accept every payload shape.
func (c *Contract) payloadUnion() []Param {
	seen := map[string]Param{}
	for _, k := range c.Kinds {
		for _, f := range k.Fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			f.Required = false
			if f.Name == "status" {
				f.Enum = nil
				f.Description = "Status value valid for the target entity"
			}
			seen[f.Name] = f
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Param, 0, len(names))
	for _, n := range names {
		out = append(out, seen[n])
	}
	return out
}

// Capability returns the named capability.
func (c *Contract) Capability(name string) (Capability, bool) {
	for _, capability := range c.Capabilities {
		if capability.Name == name {
			return capability, true
		}
	}
	return Capability{}, false
}

// Without returns a copy of the contract that omits the named capabilities.
func (c *Contract) Without(names ...string) *Contract {
	cp := *c
	cp.Capabilities = nil
	for _, capability := range c.Capabilities {
		skip := false
		for _, n := range names {
			if capability.Name == n {
				skip = true
			}
		}
		if !skip {
			cp.Capabilities = append(cp.Capabilities, capability)
		}
	}
	return &cp
}

func (c *Contract) Schema(kind models.ActionKind) (KindSchema, bool) {
	s, ok := c.byKind[kind]
	return s, ok
}

func (c *Contract) Known(kind models.ActionKind) bool {
	_, ok := c.byKind[kind]
	return ok
}

// Normalize trims strings and lower-cases enumerated values so "High" and
// "high" validate alike.
func (c *Contract) Normalize(req models.ActionRequest) models.ActionRequest {
	out := req.Clone()
	out.Kind = models.ActionKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
	schema, ok := c.byKind[out.Kind]
	if !ok {
		return out
	}
	for _, f := range schema.Fields {
		v, ok := out.Payload[f.Name].(string)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if len(f.Enum) > 0 {
			v = strings.ReplaceAll(strings.ToLower(v), " ", "_")
		}
		out.Payload[f.Name] = v
	}
	return out
}

// Sanitize keeps only the fields the kind declares.
func (c *Contract) Sanitize(req models.ActionRequest) map[string]any {
	schema, ok := c.byKind[req.Kind]
	if !ok {
		return nil
	}
	out := map[string]any{}
	for _, f := range schema.Fields {
		if v, ok := req.Payload[f.Name]; ok && v != nil && v != "" {
			out[f.Name] = v
		}
	}
	return out
}
