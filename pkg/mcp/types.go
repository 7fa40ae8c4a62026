// Package mcp is a minimal Model Context Protocol client speaking JSON-RPC
// 2.0 over the stdio of a tool server subprocess.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

const protocolVersion = "2024-11-05"

// Command describes the tool server process to spawn.
type Command struct {
	Name string
	Args []string
	Env  []string // appended to the parent environment
}

// ParseCommand splits a command line such as "uvx mcp-server-fetch".
func ParseCommand(line string) (Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("empty command for stdio transport")
	}
	return Command{Name: parts[0], Args: parts[1:]}, nil
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ClientInfo identifies this client during the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the result of a tools/call request.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// Text returns the first content block when it is text, else "".
func (r *ToolResult) Text() string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	if r.Content[0].Type != "text" {
		return ""
	}
	return r.Content[0].Text
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
}

// message is any frame read from the server. A frame with a method is a
// request or notification from the server; one without is a response.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// reply answers a request the server sent us. ID echoes the server's own.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const codeMethodNotFound = -32601

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}
