package publishers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samvad-hq/samvad-quote-harvester/internal/regfile"
)

const (
	// Supported publisher types.
	TypeSQS       = "sqs"
	TypeSNS       = "sns"
	TypeGCPPubSub = "gcp_pubsub"
	TypeHTTP      = "http"

	httpDefaultTimeoutSeconds = 5
)

// httpMethods are the verbs a quote webhook may be called with.
var httpMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig represents a single publisher entry declared in config files.
// Exactly the block matching Type is read.
type PublisherConfig struct {
	ID        string                    `json:"id" yaml:"id"`
	Type      string                    `json:"type" yaml:"type"`
	Enabled   *bool                     `json:"enabled" yaml:"enabled"`
	SQS       *SQSPublisherConfig       `json:"sqs" yaml:"sqs"`
	SNS       *SNSPublisherConfig       `json:"sns" yaml:"sns"`
	GCPPubSub *GCPPubSubPublisherConfig `json:"gcp_pubsub" yaml:"gcp_pubsub"`
	HTTP      *HTTPPublisherConfig      `json:"http" yaml:"http"`
}

// AWSCredentials are optional static keys; the default AWS chain is used when empty.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
}

func (c AWSCredentials) sanitize() AWSCredentials {
	c.AccessKeyID = strings.TrimSpace(c.AccessKeyID)
	c.SecretAccessKey = strings.TrimSpace(c.SecretAccessKey)
	c.SessionToken = strings.TrimSpace(c.SessionToken)
	return c
}

func (c AWSCredentials) validate() error {
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("credentials need both access_key_id and secret_access_key")
	}
	return nil
}

// SQSPublisherConfig targets a queue. FIFO queues (".fifo" suffix) are grouped
// by source and deduplicated by quote URL.
type SQSPublisherConfig struct {
	QueueURL    string         `json:"uri" yaml:"uri"`
	Region      string         `json:"region" yaml:"region"`
	Endpoint    string         `json:"endpoint" yaml:"endpoint"`
	Credentials AWSCredentials `json:"credentials" yaml:"credentials"`
}

// SNSPublisherConfig targets a topic. SubjectPrefix is prepended to the quote
// title in the message subject.
type SNSPublisherConfig struct {
	TopicARN      string         `json:"topic_arn" yaml:"topic_arn"`
	Region        string         `json:"region" yaml:"region"`
	Endpoint      string         `json:"endpoint" yaml:"endpoint"`
	SubjectPrefix string         `json:"subject_prefix" yaml:"subject_prefix"`
	Credentials   AWSCredentials `json:"credentials" yaml:"credentials"`
}

// GCPPubSubPublisherConfig holds Google Cloud Pub/Sub settings.
type GCPPubSubPublisherConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// HTTPPublisherConfig holds webhook settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retries        int               `json:"retries" yaml:"retries"`
}

// ConfigRegistry holds the validated publisher definitions of one file.
// It is immutable once parsed.
type ConfigRegistry struct {
	publishers []PublisherConfig
	idx        map[string]int
}

// LoadRegistry loads the publisher registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	var file configFile
	if err := regfile.Read(path, "publishers", &file); err != nil {
		return nil, err
	}
	return newConfigRegistry(file.Publishers)
}

// ParseRegistry decodes and validates publisher definitions. An empty ext tries YAML then JSON.
func ParseRegistry(raw []byte, ext string) (*ConfigRegistry, error) {
	var file configFile
	if err := regfile.Decode(raw, ext, "publishers", &file); err != nil {
		return nil, err
	}
	return newConfigRegistry(file.Publishers)
}

func newConfigRegistry(entries []PublisherConfig) (*ConfigRegistry, error) {
	if len(entries) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, 0, len(entries)),
		idx:        make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		cfg := sanitizePublisherConfig(entry)
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.idx[cfg.ID] = len(reg.publishers)
		reg.publishers = append(reg.publishers, cfg)
	}
	return reg, nil
}

func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}

	if cfg.SQS != nil {
		c := *cfg.SQS
		c.QueueURL = strings.TrimSpace(c.QueueURL)
		c.Region = strings.TrimSpace(c.Region)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		c.Credentials = c.Credentials.sanitize()
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.TopicARN = strings.TrimSpace(c.TopicARN)
		c.Region = strings.TrimSpace(c.Region)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		c.SubjectPrefix = strings.TrimSpace(c.SubjectPrefix)
		c.Credentials = c.Credentials.sanitize()
		cfg.SNS = &c
	}
	if cfg.GCPPubSub != nil {
		c := *cfg.GCPPubSub
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
		cfg.GCPPubSub = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = http.MethodPost
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		c.Retries = max(c.Retries, 0)
		cfg.HTTP = &c
	}
	return cfg
}

// sanitizeHeaders canonicalizes keys and drops empty entries.
func sanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key, val := strings.TrimSpace(k), strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[http.CanonicalHeaderKey(key)] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if err := validateTypeBlock(cfg); err != nil {
		return fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	return nil
}

func validateTypeBlock(cfg PublisherConfig) error {
	switch cfg.Type {
	case "":
		return errors.New("type is required")
	case TypeSQS:
		switch {
		case cfg.SQS == nil:
			return errors.New("sqs block is required")
		case cfg.SQS.QueueURL == "":
			return errors.New("sqs.uri is required")
		case cfg.SQS.Region == "":
			return errors.New("sqs.region is required")
		}
		return cfg.SQS.Credentials.validate()
	case TypeSNS:
		switch {
		case cfg.SNS == nil:
			return errors.New("sns block is required")
		case cfg.SNS.TopicARN == "":
			return errors.New("sns.topic_arn is required")
		case cfg.SNS.Region == "":
			return errors.New("sns.region is required")
		}
		return cfg.SNS.Credentials.validate()
	case TypeGCPPubSub:
		switch {
		case cfg.GCPPubSub == nil:
			return errors.New("gcp_pubsub block is required")
		case cfg.GCPPubSub.ProjectID == "":
			return errors.New("gcp_pubsub.project_id is required")
		case cfg.GCPPubSub.Topic == "":
			return errors.New("gcp_pubsub.topic is required")
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return errors.New("http block is required")
		}
		u, err := url.Parse(cfg.HTTP.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("http.url %q must be an absolute http(s) url", cfg.HTTP.URL)
		}
		if !httpMethods[cfg.HTTP.Method] {
			return fmt.Errorf("http.method %q is not one of POST, PUT, PATCH", cfg.HTTP.Method)
		}
	}
	return nil
}

// ByID returns the publisher config by id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	i, ok := r.idx[strings.TrimSpace(id)]
	if !ok {
		return PublisherConfig{}, false
	}
	return r.publishers[i], true
}

// All returns all configured publishers in file order.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	out := make([]PublisherConfig, len(r.publishers))
	copy(out, r.publishers)
	return out
}

// Enabled returns publishers that are enabled, in file order.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
