package mcp

import (
	"github.com/newtron-network/cmlkit/pkg/configlet"
)

type promptDef struct {
	prompt
	text string
}

var prompts = []promptDef{
	{
		prompt: prompt{
			Name:        "cml-describe-topology",
			Description: "Analyze a lab's topology and suggest improvements",
			Arguments: []promptArgument{
				{Name: "lab_id", Description: "Lab to analyze", Required: true},
			},
		},
		text: `Please analyze the following network topology from Cisco Modeling Labs (Lab ID: {{lab_id}}).
Describe the network elements, their connections, and the overall architecture.
Suggest any improvements or potential issues with the design.
`,
	},
	{
		prompt: prompt{
			Name:        "cml-create-lab",
			Description: "Design and build a new lab step by step",
			Arguments: []promptArgument{
				{Name: "requirements", Description: "What the lab must demonstrate"},
			},
		},
		text: `I need you to help me create a network lab in Cisco Modeling Labs.

Please design a lab that meets the following requirements:
{{requirements}}

For each device, specify:
1. Device type (router, switch, etc.)
2. Basic configuration
3. Network connections

After designing the topology, you'll need to:
1. Create the lab in CML
2. Add the nodes
3. Create the links between nodes
4. Configure each node
5. Start the lab

Please walk through this process step by step.
`,
	},
}

func findPrompt(name string) (promptDef, bool) {
	for _, p := range prompts {
		if p.Name == name {
			return p, true
		}
	}
	return promptDef{}, false
}

// render fills the prompt's arguments. Required arguments must be present.
func (p promptDef) render(args map[string]string) (string, *ResponseError) {
	for _, a := range p.Arguments {
		if a.Required && args[a.Name] == "" {
			return "", rpcError(CodeInvalidParams, "prompt %s: missing argument %s", p.Name, a.Name)
		}
	}
	vars := configlet.MergeVars(map[string]string{"requirements": "(not specified)"}, args)
	return configlet.ResolveVariables(p.text, vars), nil
}
