package publishers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// loadAWSConfig resolves AWS settings for region, preferring static keys when configured.
func loadAWSConfig(ctx context.Context, region string, creds AWSCredentials) (aws.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if creds.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

const (
	fifoSuffix       = ".fifo"
	defaultGroupID   = "quotes"
	snsSubjectMaxLen = 99
)

// stringAttributes converts the event attributes into SDK message attributes.
func stringAttributes[T any](evt Event, attr func(dataType, value *string) T) map[string]T {
	out := make(map[string]T)
	for k, v := range evt.attributes() {
		out[k] = attr(aws.String("String"), aws.String(v))
	}
	return out
}

func isFIFO(target string) bool {
	return strings.HasSuffix(target, fifoSuffix)
}

// fifoGroupID keeps events of one source in order.
func fifoGroupID(evt Event) string {
	if evt.SourceID != "" {
		return evt.SourceID
	}
	return defaultGroupID
}

// fifoDeduplicationID collapses redeliveries of the same quote page. Ids are
// capped at 128 characters by AWS, so the URL is hashed.
func fifoDeduplicationID(evt Event) string {
	key := evt.Quote.URL
	if key == "" {
		key = evt.ID
	}
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// snsSubject builds a printable ASCII subject from the quote title. Accents
// are stripped and other non-ASCII runes dropped.
func snsSubject(prefix, title string) string {
	raw := strings.TrimSpace(strings.TrimSpace(prefix) + " " + title)
	var b strings.Builder
	for _, r := range norm.NFD.String(raw) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		}
	}
	subject := strings.Join(strings.Fields(b.String()), " ")
	if len(subject) > snsSubjectMaxLen {
		subject = strings.TrimSpace(subject[:snsSubjectMaxLen])
	}
	return subject
}
