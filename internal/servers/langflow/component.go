package langflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// echoExample is appended to every code generation prompt so the model
// sees the shape of a custom component.
const echoExample = ` # from langflow.field_typing import Data
from langflow.custom import Component
from langflow.io import MessageTextInput, Output
from langflow.schema import Data


class CustomComponent(Component):
    display_name = "Custom Component"
    description = "Use as a template to create your own component."
    documentation: str = "http://docs.langflow.org/components/custom"
    icon = "code"
    name = "CustomComponent"

    inputs = [
        MessageTextInput(
            name="input_value",
            display_name="Input Value",
            info="This is a custom component Input",
            value="Hello, World!",
            tool_mode=True,
        ),
    ]

    outputs = [
        Output(display_name="Output", name="output", method="build_output"),
    ]

    def build_output(self) -> Data:
        data = Data(value=self.input_value)
        self.status = data
        return data
`

// CodePrompt is the prompt sent to the code model.
func CodePrompt(description string) string {
	return description + " Here is an example of a Echo function:" + echoExample
}

// DefinitionPrompt is the prompt sent to the definition model. code is the
// JSON string literal of the generated source.
func DefinitionPrompt(code, inputOutput string) string {
	return "Generate a LangFlow component JSON for the python code that matches:  " + code + "." + inputOutput + " Leave 'value' field empty."
}

var pythonBlock = regexp.MustCompile("(?s)```python\\s*(.*?)\\s*```")

// ExtractPython returns the body of the first ```python fenced block of
// reply, or false when there is none.
func ExtractPython(reply string) (string, bool) {
	m := pythonBlock.FindStringSubmatch(reply)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// ExtractFenced returns the body of the first ```json block of reply, or of
// the first plain ``` block, or reply itself when it has no fence.
func ExtractFenced(reply string) string {
	open := "```json"
	start := strings.Index(reply, open)
	if start < 0 {
		open = "```"
		start = strings.Index(reply, open)
	}
	if start < 0 {
		return reply
	}
	body := reply[start+len(open):]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// StringLiteral encodes s as a JSON string without HTML escaping.
func StringLiteral(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// LastSentence returns the final sentence of text. A sentence ends at a
// '.' or '?' followed by whitespace, except after abbreviations such as
// "e.g." or "Mr.".
func LastSentence(text string) string {
	r := []rune(strings.TrimSpace(text))
	for i := len(r) - 1; i > 0; i-- {
		if unicode.IsSpace(r[i]) && isSentenceEnd(r, i) {
			return string(r[i+1:])
		}
	}
	return string(r)
}

// isSentenceEnd reports whether the whitespace at r[i] closes a sentence.
func isSentenceEnd(r []rune, i int) bool {
	if p := r[i-1]; p != '.' && p != '?' {
		return false
	}
	// "e.g." style: word char, dot, word char, any char.
	if i >= 4 && isWord(r[i-4]) && r[i-3] == '.' && isWord(r[i-2]) {
		return false
	}
	// "Mr." style: capital, lower case, dot.
	if i >= 3 && unicode.IsUpper(r[i-3]) && unicode.IsLower(r[i-2]) && r[i-1] == '.' {
		return false
	}
	return true
}

func isWord(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

var errNoCodeTemplate = errors.New("no node with a code template")

// InjectCode parses the component definition doc and stores code as the
// value of the code template of the first node that has one. The result
// is indented JSON.
func InjectCode(doc, code string) ([]byte, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(doc), &root); err != nil {
		return nil, err
	}
	if err := setCodeValue(root, code); err != nil && !errors.Is(err, errNoCodeTemplate) {
		return nil, err
	}
	return json.MarshalIndent(root, "", "  ")
}

func setCodeValue(root map[string]any, code string) error {
	data, _ := root["data"].(map[string]any)
	nodes, _ := data["nodes"].([]any)
	for _, n := range nodes {
		node, _ := n.(map[string]any)
		nodeData, _ := node["data"].(map[string]any)
		inner, _ := nodeData["node"].(map[string]any)
		template, _ := inner["template"].(map[string]any)
		codeField, ok := template["code"].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := codeField["value"]; ok {
			codeField["value"] = code
			return nil
		}
	}
	return errNoCodeTemplate
}

// componentNode is the first node of a saved component file.
type componentNode struct {
	Type     string
	Node     map[string]any
	Template map[string]any
}

var errNoComponent = errors.New("Could not extract component information")

func extractComponent(doc map[string]any) (componentNode, error) {
	data, _ := doc["data"].(map[string]any)
	nodes, _ := data["nodes"].([]any)
	if len(nodes) == 0 {
		return componentNode{}, errNoComponent
	}
	first, _ := nodes[0].(map[string]any)
	nodeData, _ := first["data"].(map[string]any)
	typ, _ := nodeData["type"].(string)
	inner, _ := nodeData["node"].(map[string]any)
	if typ == "" || len(inner) == 0 {
		return componentNode{}, errNoComponent
	}
	return componentNode{Type: typ, Node: inner, Template: first}, nil
}

// newNode builds the genericNode placed on a flow for c.
func newNode(c componentNode, id string, x, y int) map[string]any {
	data := map[string]any{
		"node": c.Node,
		"id":   id,
		"type": c.Type,
	}
	node := map[string]any{
		"id":       id,
		"type":     "genericNode",
		"position": map[string]any{"x": x, "y": y},
		"data":     data,
	}
	for _, f := range []string{"selected", "width", "height", "dragging", "positionAbsolute"} {
		if v, ok := c.Template[f]; ok {
			node[f] = v
		}
	}
	tmplData, _ := c.Template["data"].(map[string]any)
	for _, f := range []string{"value", "showNode", "display_name", "description"} {
		if v, ok := tmplData[f]; ok {
			data[f] = v
		}
	}
	return node
}

var errInvalidFlow = errors.New("Invalid flow data structure")

// appendNode adds node to the nodes of flow.
func appendNode(flow, node map[string]any) error {
	data, ok := flow["data"].(map[string]any)
	if !ok {
		return errInvalidFlow
	}
	raw, ok := data["nodes"]
	if !ok {
		return errInvalidFlow
	}
	nodes, _ := raw.([]any)
	data["nodes"] = append(nodes, node)
	return nil
}
