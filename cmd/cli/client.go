package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Config holds the connection details
type Config struct {
	BaseURL string
	User    string
	Key     string
}

type CheckRequest struct {
	URL string `json:"url"`
}

type NewUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func main() {
	baseURL := os.Getenv("URLSENTRY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	user := os.Getenv("URLSENTRY_USER")
	key := os.Getenv("URLSENTRY_KEY")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	client := &APIClient{
		Config: Config{
			BaseURL: baseURL,
			User:    user,
			Key:     key,
		},
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
	}

	switch os.Args[1] {
	case "check":
		handleCheck(client, os.Args[2:])
	case "history":
		handleHistory(client)
	case "stats":
		handleStats(client)
	case "add-user":
		handleAddUser(client, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- Command Handlers ---

func handleCheck(client *APIClient, args []string) {
	cmd := flag.NewFlagSet("check", flag.ExitOnError)
	target := cmd.String("url", "", "URL to check")
	cmd.Parse(args)

	if *target == "" {
		fmt.Println("Error: --url is required")
		cmd.Usage()
		os.Exit(1)
	}

	resp, err := client.Request("POST", "/api/check", CheckRequest{URL: *target})
	if err != nil {
		die(err)
	}
	prettyPrint(resp)
}

func handleHistory(client *APIClient) {
	resp, err := client.Request("GET", "/api/history", nil)
	if err != nil {
		die(err)
	}
	prettyPrint(resp)
}

func handleStats(client *APIClient) {
	resp, err := client.Request("GET", "/stats", nil)
	if err != nil {
		die(err)
	}
	prettyPrint(resp)
}

func handleAddUser(client *APIClient, args []string) {
	cmd := flag.NewFlagSet("add-user", flag.ExitOnError)
	email := cmd.String("email", "", "Email of the new user")
	pass := cmd.String("password", "", "Password for the new user")
	isAdmin := cmd.Bool("admin", false, "Grant admin privileges")

	cmd.Parse(args)

	if *email == "" || *pass == "" {
		fmt.Println("Error: --email and --password are required")
		cmd.Usage()
		os.Exit(1)
	}

	payload := NewUserRequest{
		Email:    *email,
		Password: *pass,
		Admin:    *isAdmin,
	}

	resp, err := client.Request("POST", "/adduser", payload)
	if err != nil {
		die(err)
	}

	fmt.Println("User created successfully:")
	fmt.Println(string(resp))
}

// --- API Client ---

type APIClient struct {
	Config     Config
	HTTPClient *http.Client
}

func (c *APIClient) Request(method, endpoint string, data interface{}) ([]byte, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.Config.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Server accepts "Authorization: email:KEY"
	if c.Config.User == "" || c.Config.Key == "" {
		return nil, fmt.Errorf("credentials not set in environment variables")
	}
	authVal := fmt.Sprintf("%s:%s", c.Config.User, c.Config.Key)
	req.Header.Set("Authorization", authVal)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API Error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// --- Helpers ---

func prettyPrint(raw []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(out.String())
}

func printUsage() {
	fmt.Println("Usage: urlsentry-cli <command> [flags]")
	fmt.Println("\nCommands:")
	fmt.Println("  check                   Run a safety check against a URL")
	fmt.Println("     Flags: --url")
	fmt.Println("  history                 List recent scans")
	fmt.Println("  stats                   Get server statistics")
	fmt.Println("  add-user                Create a new user")
	fmt.Println("     Flags: --email, --password, --admin (optional)")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  URLSENTRY_URL           (default: http://localhost:8080)")
	fmt.Println("  URLSENTRY_USER          User email address")
	fmt.Println("  URLSENTRY_KEY           User API key")
}

func die(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
