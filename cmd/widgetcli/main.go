// Command widgetcli plays the host page and the visitor for a widgetd instance.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/logging"
	"github.com/xiaot623/gogo/widget/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// hostFlags are the host page settings shared by all commands.
type hostFlags struct {
	server       string
	snippet      string
	tenantID     string
	widgetID     string
	primaryColor string
	accentColor  string
	mode         string
	viewport     string
	scope        string
	pageURL      string
	trustOrigins []string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	f := &hostFlags{}
	cmd := &cobra.Command{
		Use:           "widgetcli",
		Short:         "Embed and chat with a widgetd widget from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.server, "server", "http://localhost:8080", "widgetd base URL")
	pf.StringVar(&f.snippet, "snippet", "", "YAML file describing the embed script tag")
	pf.StringVar(&f.tenantID, "tenant", "", "tenant id")
	pf.StringVar(&f.widgetID, "widget", "", "widget id (defaults to tenant)")
	pf.StringVar(&f.primaryColor, "primary-color", "", "primary theme color")
	pf.StringVar(&f.accentColor, "accent-color", "", "accent theme color")
	pf.StringVar(&f.mode, "mode", "", `widget mode ("bare" drops chrome)`)
	pf.StringVar(&f.viewport, "viewport", "1280x800", "host viewport as WIDTHxHEIGHT")
	pf.StringVar(&f.scope, "scope", defaultScope(), "storage scope standing in for the browser profile")
	pf.StringVar(&f.pageURL, "page-url", "https://host.example/", "URL of the simulated host page")
	pf.StringSliceVar(&f.trustOrigins, "trust-origin", nil, "only accept frame messages from these origins")
	pf.StringVar(&f.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newChatCmd(f), newFrameURLCmd(f))
	return cmd
}

func newFrameURLCmd(f *hostFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "frame-url",
		Short: "Print the frame URL the loader would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			layers, err := f.layers(os.Getenv)
			if err != nil {
				return err
			}
			frameURL, _, err := bridge.NewLoader(frameBase(f.server)).Activate(bridge.DefaultElementID, layers...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), frameURL)
			return nil
		},
	}
}

func newChatCmd(f *hostFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Embed the widget and chat with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.Setup(f.logLevel, cmd.ErrOrStderr())
			return runChat(f, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

// layers returns config layers in precedence order: flags, script URL
// parameters, script attributes, globals.
func (f *hostFlags) layers(getenv func(string) string) ([]bridge.Layer, error) {
	flags := bridge.Layer{
		TenantID:     f.tenantID,
		WidgetID:     f.widgetID,
		PrimaryColor: f.primaryColor,
		AccentColor:  f.accentColor,
		Mode:         f.mode,
	}

	var snippet *Snippet
	if f.snippet != "" {
		s, err := LoadSnippet(f.snippet)
		if err != nil {
			return nil, err
		}
		snippet = s
	}
	explicit, attrs, err := snippet.Layers()
	if err != nil {
		return nil, err
	}
	return []bridge.Layer{flags, explicit, attrs, bridge.FromGlobals(getenv)}, nil
}

func runChat(f *hostFlags, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	vp, err := parseViewport(f.viewport)
	if err != nil {
		return err
	}
	layers, err := f.layers(os.Getenv)
	if err != nil {
		return err
	}

	// The loader refuses to create a frame without a tenant.
	frameURL, _, err := bridge.NewLoader(frameBase(f.server)).Activate(bridge.DefaultElementID, layers...)
	if err != nil {
		return err
	}
	u, err := url.Parse(frameURL)
	if err != nil {
		return err
	}
	cfg, err := bridge.DecodeFrameConfig(u.Query())
	if err != nil {
		return err
	}

	view := NewView(out, cfg.Theme(), isTerminal(out))
	frameOrigin := originOf(f.server)
	host := bridge.NewHost(vp,
		bridge.WithAllowedOrigins(f.trustOrigins...),
		bridge.WithHostLogger(logging.Component(logger, "host")),
		bridge.WithOnChange(view.Geometry),
	)

	wsURL, err := websocketURL(f.server)
	if err != nil {
		return err
	}
	client, err := NewClient(wsURL, func(msgType string, data []byte) {
		dispatch(view, host, frameOrigin, msgType, data, logger)
	})
	if err != nil {
		return err
	}
	defer client.Close()

	page, err := pageContext(f.pageURL)
	if err != nil {
		return err
	}
	hello := protocol.HelloMessage{
		TenantID:     cfg.TenantID,
		WidgetID:     cfg.WidgetID,
		PrimaryColor: cfg.PrimaryColor,
		AccentColor:  cfg.AccentColor,
		Scope:        f.scope,
		Context:      page,
		Viewport:     &vp,
	}
	if cfg.Bare {
		hello.Mode = domain.ModeBare
	}
	if _, err := client.SendHello(hello); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s. Commands: /open /close /toggle /clear /esc /resize WxH /quit\n", client.SessionID())

	readErr := make(chan error, 1)
	go func() { readErr <- client.ReadMessages() }()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		cmd, err := parseCommand(input)
		if err != nil {
			view.Error("input", err.Error())
			continue
		}
		if cmd.quit {
			return nil
		}
		if err := cmd.apply(client, host); err != nil {
			return err
		}

		select {
		case err := <-readErr:
			return err
		default:
		}
	}
	return scanner.Err()
}

// dispatch routes one service message to the view and host.
func dispatch(view *View, host *bridge.Host, frameOrigin, msgType string, data []byte, logger zerolog.Logger) {
	switch msgType {
	case protocol.TypeTranscript:
		var msg protocol.TranscriptMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			view.Transcript(msg.Messages)
		}
	case protocol.TypeState:
		var msg protocol.StateMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			view.State(msg.State)
		}
	case protocol.TypeSize:
		// The frame relays its size report to the host page.
		var msg struct {
			Frame json.RawMessage `json:"frame"`
		}
		if err := json.Unmarshal(data, &msg); err == nil {
			host.Handle(msg.Frame, frameOrigin)
		}
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			view.Error(msg.Code, msg.Message)
		}
	default:
		logger.Debug().Str("type", msgType).Msg("Ignoring message")
	}
}

// command is one parsed line of visitor input.
type command struct {
	action   string
	text     string
	key      string
	viewport *domain.Viewport
	quit     bool
}

func parseCommand(input string) (command, error) {
	if !strings.HasPrefix(input, "/") {
		return command{text: input}, nil
	}
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit":
		return command{quit: true}, nil
	case "/open":
		return command{action: protocol.TypeOpen}, nil
	case "/close":
		return command{action: protocol.TypeClose}, nil
	case "/toggle":
		return command{action: protocol.TypeToggle}, nil
	case "/clear":
		return command{action: protocol.TypeClear}, nil
	case "/esc":
		return command{key: bridge.EscapeKey}, nil
	case "/resize":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /resize WIDTHxHEIGHT")
		}
		vp, err := parseViewport(fields[1])
		if err != nil {
			return command{}, err
		}
		return command{viewport: &vp}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s", fields[0])
	}
}

func (c command) apply(client *Client, host *bridge.Host) error {
	switch {
	case c.action != "":
		return client.SendAction(c.action)
	case c.key != "":
		return client.SendKey(c.key)
	case c.viewport != nil:
		// Host page and frame share the terminal's viewport.
		host.SetViewport(*c.viewport)
		return client.SendViewport(*c.viewport)
	default:
		return client.SendText(c.text)
	}
}

func parseViewport(s string) (domain.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return domain.Viewport{}, fmt.Errorf("invalid viewport %q, want WIDTHxHEIGHT", s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil || width <= 0 {
		return domain.Viewport{}, fmt.Errorf("invalid viewport width %q", w)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil || height <= 0 {
		return domain.Viewport{}, fmt.Errorf("invalid viewport height %q", h)
	}
	return domain.Viewport{Width: width, Height: height}, nil
}

func frameBase(server string) string {
	return strings.TrimRight(server, "/") + "/widget"
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func pageContext(pageURL string) (domain.PageContext, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return domain.PageContext{}, fmt.Errorf("invalid page url: %w", err)
	}
	locale := os.Getenv("LANG")
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	return domain.PageContext{
		PageURL:   pageURL,
		Locale:    strings.ReplaceAll(locale, "_", "-"),
		UserAgent: "widgetcli",
		Hostname:  u.Hostname(),
		Origin:    originOf(pageURL),
	}, nil
}

func defaultScope() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "widgetcli"
	}
	return "widgetcli-" + host
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
