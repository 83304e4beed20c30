// Package credential resolves Google service-account credentials from the
// environment or from a conventional local file.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the broad scope used for Vertex AI and Cloud Storage.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Credential is a parsed service-account key. PrivateKey always holds real
// line breaks once the value leaves this package.
type Credential struct {
	Type                string `json:"type,omitempty"`
	ProjectID           string `json:"project_id,omitempty"`
	PrivateKeyID        string `json:"private_key_id,omitempty"`
	PrivateKey          string `json:"private_key"`
	ClientEmail         string `json:"client_email"`
	ClientID            string `json:"client_id,omitempty"`
	AuthURI             string `json:"auth_uri,omitempty"`
	TokenURI            string `json:"token_uri,omitempty"`
	AuthProviderCertURL string `json:"auth_provider_x509_cert_url,omitempty"`
	ClientCertURL       string `json:"client_x509_cert_url,omitempty"`
	UniverseDomain      string `json:"universe_domain,omitempty"`
}

// Kind is a named credential family. Each kind has its own environment
// variables and its own file under the credentials directory.
type Kind struct {
	Name      string
	EnvPrefix string
	FileName  string
}

var (
	// KindVertexAI authenticates model calls.
	KindVertexAI = Kind{Name: "vertex-ai", EnvPrefix: "GOOGLE_CREDENTIALS", FileName: "google-credentials.json"}
	// KindFirebase authenticates the photo bucket.
	KindFirebase = Kind{Name: "firebase", EnvPrefix: "FIREBASE_CREDENTIALS", FileName: "firebase-credentials.json"}
)

// Kinds lists every credential family managed by the resolver.
var Kinds = []Kind{KindVertexAI, KindFirebase}

// KindByName looks up a kind by its Name.
func KindByName(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

func (k Kind) String() string { return k.Name }

// Base64Var is the variable holding the base64-encoded key file.
func (k Kind) Base64Var() string { return k.EnvPrefix + "_BASE64" }

// JSONVar is the variable holding the raw key file contents.
func (k Kind) JSONVar() string { return k.EnvPrefix + "_JSON" }

// JSON serializes the credential in the service-account key file format.
func (c *Credential) JSON() ([]byte, error) {
	out := *c
	if out.Type == "" {
		out.Type = "service_account"
	}
	return json.Marshal(out)
}

// AuthCredentials converts the key into credentials usable by the genai SDK.
func (c *Credential) AuthCredentials(scopes ...string) (*auth.Credentials, error) {
	data, err := c.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes:          scopes,
		CredentialsJSON: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build auth credentials: %w", err)
	}
	return creds, nil
}

// TokenSource returns an oauth2 token source signing JWTs with the key.
func (c *Credential) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	data, err := c.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to build jwt config: %w", err)
	}
	return cfg.TokenSource(ctx), nil
}

// parse decodes a key file and normalizes the private key.
func parse(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid credential json: %w", err)
	}
	c.PrivateKey = normalizeKey(c.PrivateKey)
	if c.ClientEmail == "" {
		return nil, errors.New("credential missing client_email")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		return nil, errors.New("credential missing private_key")
	}
	return &c, nil
}

// normalizeKey turns escaped \n sequences into line breaks. Keys that were
// escaped twice on their way into the environment decode to a literal
// backslash-n.
func normalizeKey(key string) string {
	key = strings.ReplaceAll(key, `\r\n`, "\n")
	key = strings.ReplaceAll(key, `\n`, "\n")
	return strings.ReplaceAll(key, "\r\n", "\n")
}

// escapeLineBreaks rewrites raw line breaks inside JSON string literals as
// \n escapes. Line breaks between tokens are left alone so pretty-printed
// documents stay valid.
func escapeLineBreaks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(ch)
		case ch == '\\':
			escaped = true
			b.WriteByte(ch)
		case ch == '"':
			inString = false
			b.WriteByte(ch)
		case ch == '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			b.WriteString(`\n`)
		case ch == '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
