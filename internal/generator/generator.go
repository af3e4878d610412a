// internal/generator/generator.go
//
// LLM-backed code generation for agent tasks. The prompt template
// constrains generated scripts to the sandbox's external functions.
package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrGeneration marks a transport or decode failure while generating.
var ErrGeneration = errors.New("code generation failed")

const promptTemplate = `Write a short Go script to accomplish this task:
%s

Available functions (the ONLY things you can call):
- read_file(path string) string
- write_file(path string, content string) bool
- list_dir(path string) []string
- file_exists(path string) bool
- search_files(pattern string) []string
- search_content(pattern string, path string) []map[string]any
- ask_llm(prompt string, context string) string
- submit_result(summary string, changed_files []string) bool
- log(message string) bool

Constraints:
- You CANNOT: import anything, use os.Open, use reflection, spawn goroutines
- Write simple procedural Go: variables, functions, loops, conditionals only
- Always call submit_result() at the end with a summary and the list of changed files
- Use log() to debug

Respond with ONLY the Go code. No package clause, no markdown, no explanation.`

// Generator produces a script for a task description.
type Generator interface {
	Generate(task string) (string, error)
}

// HTTPGenerator calls an OpenAI-compatible chat-completions endpoint.
type HTTPGenerator struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewHTTPGenerator creates a generator against the given endpoint.
func NewHTTPGenerator(endpoint, model, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the endpoint for a script implementing the task and
// returns it with any markdown fencing stripped.
func (g *HTTPGenerator) Generate(task string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, task)

	body, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	req, err := http.NewRequest("POST", g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: endpoint returned status %d: %s", ErrGeneration, resp.StatusCode, string(msg))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}

	return ExtractCode(decoded.Choices[0].Message.Content), nil
}

// Ask sends a raw prompt with no code template and returns the
// response text verbatim. Used by the ask_llm external function.
func (g *HTTPGenerator) Ask(prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	req, err := http.NewRequest("POST", g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: endpoint returned status %d: %s", ErrGeneration, resp.StatusCode, string(msg))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return decoded.Choices[0].Message.Content, nil
}

// ExtractCode strips markdown code fences from an LLM response.
func ExtractCode(response string) string {
	lines := strings.Split(strings.TrimSpace(response), "\n")

	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
