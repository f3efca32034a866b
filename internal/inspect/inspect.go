// file: internal/inspect/inspect.go

// Package inspect runs the inbound delivery authenticator offline against
// request fixtures and mocked actor documents.
package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"fedgate/internal/federation"
	"fedgate/internal/httpsig"
	"fedgate/internal/logger"
	"fedgate/internal/resolver"
)

// Inspector holds the configuration for offline checks
type Inspector struct {
	Logger  *logger.Logger
	Verbose bool
}

// New creates a new Inspector instance
func New(log *logger.Logger, verbose bool) *Inspector {
	return &Inspector{Logger: log, Verbose: verbose}
}

// LoadFixture reads a YAML request fixture
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if f.Method == "" {
		f.Method = http.MethodPost
	}
	if f.Host == "" {
		f.Host = "localhost"
	}
	if f.Path == "" {
		f.Path = "/inbox"
	}
	return &f, nil
}

// LoadActorMocks reads a YAML file of actor documents. An empty path yields
// no actors, so every lookup answers 404.
func LoadActorMocks(path string) (*ActorMocks, error) {
	mocks := &ActorMocks{}
	if path == "" {
		return mocks, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actor mocks: %w", err)
	}
	if err := yaml.Unmarshal(data, mocks); err != nil {
		return nil, fmt.Errorf("failed to parse actor mocks %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i, a := range mocks.Actors {
		if a.ID == "" {
			return nil, fmt.Errorf("actor %d in %s has no id", i, path)
		}
		key := a.PublicKey
		if key == nil || key.PublicKeyFile == "" {
			continue
		}
		keyPath := key.PublicKeyFile
		if !filepath.IsAbs(keyPath) {
			keyPath = filepath.Join(baseDir, keyPath)
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key for %s: %w", a.ID, err)
		}
		key.PublicKeyPem = string(pem)
	}
	return mocks, nil
}

// Resolver builds a resolver answering from the mocks
func (m *ActorMocks) Resolver() *resolver.StaticResolver {
	res := resolver.NewStaticResolver()
	for _, a := range m.Actors {
		res.AddActor(a.actor())
	}
	for iri, status := range m.Statuses {
		res.AddStatus(iri, status)
	}
	return res
}

// Request builds the HTTP request described by the fixture
func (f *Fixture) Request() (*http.Request, error) {
	r, err := http.NewRequest(f.Method, "https://"+f.Host+f.Path, bytes.NewReader([]byte(f.Body)))
	if err != nil {
		return nil, fmt.Errorf("invalid fixture request: %w", err)
	}
	for name, value := range f.Headers {
		if strings.EqualFold(name, "Host") {
			continue
		}
		r.Header.Set(name, value)
	}
	return r, nil
}

// Check authenticates the fixture against the mocked actors. Gate and
// authentication run exactly as they would in the gateway; only the remote
// fetches are replaced.
func (i *Inspector) Check(ctx context.Context, f *Fixture, mocks *ActorMocks) (*Report, error) {
	start := time.Now()
	mode := federation.NewMode(f.Environment)

	gateEnabled := f.GateEnabled == nil || *f.GateEnabled
	if gateEnabled && !mode.IsOpen() {
		return outcomeReport(federation.OutcomeDisabled, start), nil
	}

	r, err := f.Request()
	if err != nil {
		return nil, err
	}
	req, err := federation.NewInboundRequest(r, []byte(f.Body))
	if err != nil {
		return nil, err
	}

	res := mocks.Resolver()
	auth := federation.NewAuthenticator(res, mode, i.Logger)
	v := auth.Authenticate(ctx, req)

	report := outcomeReport(v.Outcome, start)
	report.KeyID = v.KeyID
	report.ResolverCalls = res.Calls()
	for _, s := range v.Path {
		report.Path = append(report.Path, s.String())
	}
	if v.Actor != nil {
		report.Actor = v.Actor.ID
	}
	if v.Err != nil {
		report.Error = v.Err.Error()
	}
	return report, nil
}

func outcomeReport(o federation.Outcome, start time.Time) *Report {
	status := o.StatusCode()
	if o == federation.OutcomeAllow {
		status = http.StatusAccepted
	}
	return &Report{
		Outcome:    o.String(),
		StatusCode: status,
		Body:       o.Body(),
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// QuickCheck loads a fixture and optional actor mocks, runs Check and
// prints the report.
func (i *Inspector) QuickCheck(w io.Writer, fixturePath, mocksPath string, jsonOutput bool) (*Report, error) {
	fixture, err := LoadFixture(fixturePath)
	if err != nil {
		return nil, err
	}
	mocks, err := LoadActorMocks(mocksPath)
	if err != nil {
		return nil, err
	}

	report, err := i.Check(context.Background(), fixture, mocks)
	if err != nil {
		return nil, err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(w, string(data))
		return report, nil
	}

	i.printReport(w, fixturePath, report)
	return report, nil
}

func (i *Inspector) printReport(w io.Writer, fixturePath string, r *Report) {
	mark := "✖"
	if r.Outcome == federation.OutcomeAllow.String() {
		mark = "✓"
	}
	fmt.Fprintf(w, "%s %s: %s (%d)\n", mark, fixturePath, r.Outcome, r.StatusCode)
	if r.Body != "" {
		fmt.Fprintf(w, "  Body: %s\n", r.Body)
	}
	if r.Actor != "" {
		fmt.Fprintf(w, "  Actor: %s\n", r.Actor)
	}
	if r.KeyID != "" {
		fmt.Fprintf(w, "  KeyId: %s\n", r.KeyID)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}
	if i.Verbose {
		fmt.Fprintf(w, "  Path: %s\n", strings.Join(r.Path, " → "))
		fmt.Fprintf(w, "  Resolver calls: %d\n", r.ResolverCalls)
		fmt.Fprintf(w, "  Duration: %dms\n", r.DurationMs)
	}
}

// SignFixture signs the fixture's request with privateKeyPEM and writes the
// resulting Date, Digest and signature headers back into the fixture.
func SignFixture(f *Fixture, privateKeyPEM []byte, keyID string, scheme httpsig.Scheme) error {
	key, err := httpsig.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return err
	}

	r, err := f.Request()
	if err != nil {
		return err
	}
	if r.Header.Get("Date") == "" {
		r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if err := httpsig.Sign(r, []byte(f.Body), keyID, key, scheme); err != nil {
		return err
	}

	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	for name := range r.Header {
		if strings.EqualFold(name, "Host") {
			continue
		}
		f.Headers[name] = r.Header.Get(name)
	}
	return nil
}

// WriteFixture encodes a fixture as YAML
func WriteFixture(w io.Writer, f *Fixture) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	return enc.Close()
}
