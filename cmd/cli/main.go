package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	defaultPort    = "23"
	portalPort     = "80"
	defaultTimeout = 10 * time.Second
	readTimeout    = 5 * time.Second
)

func main() {
	// Load .env file before parsing flags
	loadEnvFile()

	// Parse flags
	host := flag.String("host", "", "Device IP address (required)")
	port := flag.String("port", defaultPort, "Device console port")
	cmd := flag.String("cmd", "", "Single command to execute (interactive mode if empty)")
	password := flag.String("password", "", "Console password (or use AIRNODE_PASSWORD env var)")
	flag.Parse()

	if *host == "" {
		// Check for positional argument
		if flag.NArg() > 0 {
			*host = flag.Arg(0)
		} else {
			printUsage()
			os.Exit(1)
		}
	}

	// Check for command as second positional arg
	if *cmd == "" && flag.NArg() > 1 {
		*cmd = flag.Arg(1)
	}

	// Portal commands talk HTTP and need no console password
	switch *cmd {
	case "sensor":
		if err := portalSensor(*host); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	case "scan":
		if err := portalScan(*host); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	case "configure":
		var ssid, passphrase string
		if flag.NArg() > 2 {
			ssid = flag.Arg(2)
		} else {
			fmt.Println("Usage: airnode-cli <ip> configure <ssid> [passphrase]")
			os.Exit(1)
		}
		if flag.NArg() > 3 {
			passphrase = flag.Arg(3)
		}
		if err := portalConfigure(*host, ssid, passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	pass := getPassword(*password)
	addr := net.JoinHostPort(*host, *port)

	if *cmd != "" {
		// Single command mode
		if err := runCommand(addr, *cmd, pass); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		// Interactive mode
		if err := interactive(addr, pass); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func printUsage() {
	fmt.Println("Airnode CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  airnode-cli <ip> [command]")
	fmt.Println("  airnode-cli -host <ip> [-cmd <command>] [-password <pw>]")
	fmt.Println()
	fmt.Println("Authentication:")
	fmt.Println("  Password can be provided via:")
	fmt.Println("    -password flag")
	fmt.Println("    AIRNODE_PASSWORD environment variable")
	fmt.Println("    .env file (AIRNODE_PASSWORD=...)")
	fmt.Println("    Interactive prompt")
	fmt.Println()
	fmt.Println("Console Commands:")
	fmt.Println("  help, version, status, net, uplink, sensor, time, config [url <u>|port <n>]")
	fmt.Println("  read, interval <dur>, reboot, telemetry, telemetry-flush")
	fmt.Println()
	fmt.Println("Portal Commands (HTTP, no password):")
	fmt.Println("  sensor                       Fetch latest reading as JSON")
	fmt.Println("  scan                         List visible networks (setup mode only)")
	fmt.Println("  configure <ssid> [pass]      Push WiFi credentials (setup mode only)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  airnode-cli 172.18.1.136                      # Interactive mode")
	fmt.Println("  airnode-cli 172.18.1.136 status               # Single command")
	fmt.Println("  airnode-cli 192.168.4.1 configure HomeWiFi s3cret")
	fmt.Println("  AIRNODE_PASSWORD=secret airnode-cli 172.18.1.136 status")
}

// runCommand executes a single command and prints the response
func runCommand(addr, cmd, password string) error {
	conn, err := net.DialTimeout("tcp", addr, defaultTimeout)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()

	// Authenticate
	if err := authenticate(conn, password); err != nil {
		return err
	}

	// Consume welcome message until we see the prompt
	consumeUntilPrompt(conn)

	// Send command
	_, err = conn.Write([]byte(cmd + "\r\n"))
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	// Read response
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	response := make([]byte, 4096)
	n, _ := conn.Read(response)

	// Print response (strip prompt)
	output := string(response[:n])
	output = strings.TrimSuffix(output, "> ")
	output = strings.TrimSpace(output)
	fmt.Println(output)

	return nil
}

// interactive runs an interactive session with the device
func interactive(addr, password string) error {
	fmt.Printf("Connecting to %s...\n", addr)

	conn, err := net.DialTimeout("tcp", addr, defaultTimeout)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()

	// Authenticate
	if err := authenticate(conn, password); err != nil {
		return err
	}

	fmt.Println("Connected! Type 'quit' or Ctrl+C to exit.")
	fmt.Println()

	// Read welcome message
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	welcome := make([]byte, 1024)
	n, _ := conn.Read(welcome)
	fmt.Print(string(welcome[:n]))

	// Interactive loop
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue // Just show prompt again
		}

		if input == "quit" || input == "exit" {
			fmt.Println("Goodbye!")
			return nil
		}

		// Send command
		_, err = conn.Write([]byte(input + "\r\n"))
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		// Read response
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		response := make([]byte, 4096)
		n, err := conn.Read(response)
		if err != nil {
			// Try to reconnect
			fmt.Println("Connection lost, reconnecting...")
			conn.Close()
			conn, err = net.DialTimeout("tcp", addr, defaultTimeout)
			if err != nil {
				return fmt.Errorf("reconnect failed: %w", err)
			}
			// Re-authenticate
			if err := authenticate(conn, password); err != nil {
				return fmt.Errorf("reconnect auth failed: %w", err)
			}
			// Consume welcome
			consumeUntilPrompt(conn)
			continue
		}

		// Print response, stripping the device prompt
		output := string(response[:n])
		output = strings.TrimSuffix(output, "> ")
		output = strings.TrimSpace(output)
		if output != "" {
			fmt.Println(output)
		}
	}

	return nil
}

// portalSensor fetches the latest reading from the device portal
func portalSensor(host string) error {
	body, err := portalGet(host, "/api/sensor")
	if err != nil {
		return err
	}

	var reading struct {
		Temperature   float64 `json:"temperature"`
		Humidity      float64 `json:"humidity"`
		Pressure      float64 `json:"pressure"`
		GasResistance int64   `json:"gas_resistance"`
		AQI           int     `json:"aqi"`
		AgeSeconds    int64   `json:"age_seconds"`
	}
	if err := json.Unmarshal(body, &reading); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Temperature:    %.2f C\n", reading.Temperature)
	fmt.Printf("Humidity:       %.2f %%\n", reading.Humidity)
	fmt.Printf("Pressure:       %.2f hPa\n", reading.Pressure)
	fmt.Printf("Gas resistance: %d ohm\n", reading.GasResistance)
	fmt.Printf("AQI:            %d\n", reading.AQI)
	fmt.Printf("Age:            %ds\n", reading.AgeSeconds)
	return nil
}

// portalScan lists networks visible to the device (setup mode only)
func portalScan(host string) error {
	body, err := portalGet(host, "/api/scan")
	if err != nil {
		return err
	}

	var resp struct {
		Networks []struct {
			SSID string `json:"ssid"`
			RSSI int    `json:"rssi"`
		} `json:"networks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(resp.Networks) == 0 {
		fmt.Println("No networks found")
		return nil
	}
	for _, n := range resp.Networks {
		fmt.Printf("%4d dBm  %s\n", n.RSSI, n.SSID)
	}
	return nil
}

// portalConfigure pushes WiFi credentials to the device (setup mode only)
func portalConfigure(host, ssid, passphrase string) error {
	payload, err := json.Marshal(map[string]string{
		"ssid":     ssid,
		"password": passphrase,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: defaultTimeout}
	url := "http://" + net.JoinHostPort(host, portalPort) + "/api/config"
	resp, err := client.Post(url, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("post failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	fmt.Println("Device will restart and join the new network.")
	return nil
}

// portalGet fetches a portal endpoint and returns its body
func portalGet(host, path string) ([]byte, error) {
	client := &http.Client{Timeout: defaultTimeout}
	url := "http://" + net.JoinHostPort(host, portalPort) + path
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// loadEnvFile loads environment variables from .env file in current directory
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist or can't be read, that's fine
	}

	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		// Only set if not already set in environment
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// getPassword resolves password from various sources
// Priority: flag > env > .env (already loaded) > interactive prompt
func getPassword(flagValue string) string {
	// 1. Flag has highest priority
	if flagValue != "" {
		return flagValue
	}

	// 2. Environment variable
	if envPass := os.Getenv("AIRNODE_PASSWORD"); envPass != "" {
		return envPass
	}

	// 3. Interactive prompt (if terminal is available)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println() // Print newline after password
		if err == nil && len(password) > 0 {
			return string(password)
		}
	}

	return ""
}

// authenticate handles the password authentication after connecting
func authenticate(conn net.Conn, password string) error {
	// Read password prompt
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	prompt := make([]byte, 64)
	n, err := conn.Read(prompt)
	if err != nil {
		return fmt.Errorf("read prompt failed: %w", err)
	}

	// Strip telnet IAC sequences from prompt
	promptStr := string(stripTelnetIAC(prompt[:n]))
	if !strings.Contains(strings.ToLower(promptStr), "password") {
		return fmt.Errorf("unexpected prompt: %s", promptStr)
	}

	// Send password
	_, err = conn.Write([]byte(password + "\r\n"))
	if err != nil {
		return fmt.Errorf("send password failed: %w", err)
	}

	return nil
}

// stripTelnetIAC removes telnet IAC (Interpret As Command) sequences from data.
// IAC = 0xFF, followed by command byte and possibly option byte.
func stripTelnetIAC(data []byte) []byte {
	result := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] == 0xFF && i+1 < len(data) {
			// IAC sequence - skip command and option bytes
			// WILL/WONT/DO/DONT (0xFB-0xFE) have an option byte
			cmd := data[i+1]
			if cmd >= 0xFB && cmd <= 0xFE && i+2 < len(data) {
				i += 3 // Skip IAC + command + option
			} else {
				i += 2 // Skip IAC + command
			}
		} else {
			result = append(result, data[i])
			i++
		}
	}
	return result
}

// consumeUntilPrompt reads from connection until we see "> " prompt or timeout.
// This ensures we fully consume welcome messages before sending commands.
func consumeUntilPrompt(conn net.Conn) {
	buf := make([]byte, 256)
	accumulated := ""
	deadline := time.Now().Add(readTimeout)

	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			accumulated += string(stripTelnetIAC(buf[:n]))
			// Check if we've seen the prompt
			if strings.Contains(accumulated, "> ") {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
