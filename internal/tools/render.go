package tools

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// PromptReference renders the action reference embedded in the system prompt.
func (c *Contract) PromptReference() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Action reference (contract %s):\n", c.Version))
	for _, k := range c.Kinds {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", k.Kind, k.Description))
		for _, f := range k.Fields {
			line := "    " + f.Name
			if f.Required {
				line += " (required)"
			}
			if len(f.Enum) > 0 {
				line += " one of " + strings.Join(f.Enum, "|")
			} else if f.Description != "" {
				line += ": " + f.Description
			}
			sb.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// OpenAIDefinitions renders the capabilities as chat-completion function tools.
func (c *Contract) OpenAIDefinitions() []openai.ChatCompletionToolUnionParam {
	defs := make([]openai.ChatCompletionToolUnionParam, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		defs = append(defs, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        capability.Name,
			Description: openai.String(capability.Description),
			Parameters:  openai.FunctionParameters(objectSchema(capability.Params)),
		}))
	}
	return defs
}

func objectSchema(params []Param) map[string]interface{} {
	props := map[string]interface{}{}
	required := []string{}
	for _, p := range params {
		props[p.Name] = jsonSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func jsonSchema(p Param) map[string]interface{} {
	var s map[string]interface{}
	switch p.Type {
	case TypeObject:
		s = objectSchema(p.Properties)
	case TypeArray:
		s = map[string]interface{}{"type": "array"}
		if p.Items != nil {
			s["items"] = jsonSchema(*p.Items)
		}
	default:
		s = map[string]interface{}{"type": string(p.Type)}
	}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Format != "" {
		s["format"] = p.Format
	}
	if p.Pattern != "" {
		s["pattern"] = p.Pattern
	}
	return s
}

// GenAITool renders the capabilities as Gemini function declarations.
func (c *Contract) GenAITool() *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        capability.Name,
			Description: capability.Description,
			Parameters:  genaiObject(capability.Params),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func genaiObject(params []Param) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
	}
	for _, p := range params {
		s.Properties[p.Name] = genaiSchema(p)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

func genaiSchema(p Param) *genai.Schema {
	var s *genai.Schema
	switch p.Type {
	case TypeObject:
		s = genaiObject(p.Properties)
	case TypeArray:
		s = &genai.Schema{Type: genai.TypeArray}
		if p.Items != nil {
			s.Items = genaiSchema(*p.Items)
		}
	case TypeInteger:
		s = &genai.Schema{Type: genai.TypeInteger}
	case TypeBoolean:
		s = &genai.Schema{Type: genai.TypeBoolean}
	default:
		s = &genai.Schema{Type: genai.TypeString}
	}
	s.Description = p.Description
	if len(p.Enum) > 0 {
		s.Enum = p.Enum
	}
	return s
}
