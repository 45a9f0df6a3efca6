package tools

import (
	"github.com/tmc/langchaingo/llms"
)

type Tool string

const (
	BrowserScreenshot Tool = "browser_screenshot"
	BrowserDOM        Tool = "browser_dom"
	HTTPGet           Tool = "http_get"
	Finish            Tool = "finish" // sentinel, never sent to the tool gateway
)

// Declared returns whether name is part of the tool schema offered to the model.
func Declared(name string) bool {
	switch Tool(name) {
	case BrowserScreenshot, BrowserDOM, HTTPGet, Finish:
		return true
	}
	return false
}

// RequiresURL reports whether the tool needs a url argument.
func RequiresURL(name string) bool {
	switch Tool(name) {
	case BrowserScreenshot, BrowserDOM, HTTPGet:
		return true
	}
	return false
}

func urlParameters(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"url"},
	}
}

// Schema is the tool list sent with every agent turn.
func Schema() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(BrowserScreenshot),
				Description: "Load the URL in a headless browser and capture a PNG screenshot. Capturing a screenshot completes the probe.",
				Parameters:  urlParameters("absolute URL to capture"),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(BrowserDOM),
				Description: "Load the URL in a headless browser and return the rendered HTML.",
				Parameters:  urlParameters("absolute URL to load"),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(HTTPGet),
				Description: "Issue a plain HTTP GET and return status code, headers and a body excerpt.",
				Parameters:  urlParameters("absolute URL to fetch"),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(Finish),
				Description: "End the probe with a verdict.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{
							"type": "string",
							"enum": []string{"ok", "failed"},
						},
						"reason": map[string]any{
							"type":        "string",
							"description": "short justification of the verdict",
						},
						"proof": map[string]any{
							"type":        "string",
							"description": "optional path of a screenshot proving the verdict",
						},
					},
					"required": []string{"status", "reason"},
				},
			},
		},
	}
}
