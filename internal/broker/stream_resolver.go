// file: internal/broker/stream_resolver.go

package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"fedgate/internal/logger"
)

// streamDiscoveryTimeout is the maximum time to wait for JetStream stream discovery
const streamDiscoveryTimeout = 30 * time.Second

// StreamResolver discovers JetStream streams so the gateway can refuse to
// start when published activities would not be captured by any stream.
type StreamResolver struct {
	jetStream jetstream.JetStream
	streams   []StreamInfo
	logger    *logger.Logger
}

// StreamInfo holds the subject filters of one stream
type StreamInfo struct {
	Name     string
	Subjects []string
	Storage  jetstream.StorageType
}

// NewStreamResolver creates a new stream resolver
func NewStreamResolver(js jetstream.JetStream, logger *logger.Logger) *StreamResolver {
	return &StreamResolver{
		jetStream: js,
		logger:    logger,
	}
}

// Discover queries JetStream for all streams and their subject filters.
// Mirrors are counted through their filter subject.
func (sr *StreamResolver) Discover(ctx context.Context) error {
	discoverCtx, cancel := context.WithTimeout(ctx, streamDiscoveryTimeout)
	defer cancel()

	lister := sr.jetStream.ListStreams(discoverCtx)
	streams := make([]StreamInfo, 0)
	for info := range lister.Info() {
		stream := StreamInfo{
			Name:     info.Config.Name,
			Subjects: info.Config.Subjects,
			Storage:  info.Config.Storage,
		}
		if info.Config.Mirror != nil {
			filter := info.Config.Mirror.FilterSubject
			if filter == "" {
				filter = ">"
			}
			stream.Subjects = append(stream.Subjects, filter)
		}
		streams = append(streams, stream)
		sr.logger.Debug("discovered stream",
			"name", stream.Name,
			"subjects", stream.Subjects,
			"storage", stream.Storage)
	}
	if err := lister.Err(); err != nil {
		return fmt.Errorf("failed to list JetStream streams: %w", err)
	}

	sr.streams = streams
	sr.logger.Info("stream discovery complete", "streams", len(streams))
	return nil
}

// FindStreamForSubject returns the stream that captures subject, which may
// be a wildcard pattern. System and KV streams are only chosen when nothing
// else matches, and among the rest the most specific filter wins.
func (sr *StreamResolver) FindStreamForSubject(subject string) (string, error) {
	type match struct {
		stream      string
		specificity int
		system      bool
	}

	var matches []match
	for _, stream := range sr.streams {
		for _, filter := range stream.Subjects {
			if subjectMatches(subject, filter) {
				matches = append(matches, match{
					stream:      stream.Name,
					specificity: specificity(filter),
					system:      isSystemStream(stream.Name),
				})
			}
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no JetStream stream captures subject '%s'", subject)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].system != matches[j].system {
			return !matches[i].system
		}
		return matches[i].specificity > matches[j].specificity
	})
	return matches[0].stream, nil
}

// specificity scores a filter so exact tokens outrank wildcards
func specificity(filter string) int {
	score := 0
	for _, token := range strings.Split(filter, ".") {
		switch token {
		case ">":
			score++
		case "*":
			score += 10
		default:
			score += 100
		}
	}
	return score
}

// subjectMatches checks if a subject or subject pattern is captured by filter
func subjectMatches(subject, filter string) bool {
	if subject == filter {
		return true
	}
	if strings.ContainsAny(subject, "*>") {
		return patternCoveredBy(subject, filter)
	}
	if strings.ContainsAny(filter, "*>") {
		return matchPattern(subject, filter)
	}
	return false
}

// matchPattern checks if a concrete subject matches a NATS pattern
// subject: "fedgate.inbox.create" filter: "fedgate.inbox.>" → true
// subject: "fedgate.inbox.create" filter: "fedgate.*.create" → true
// subject: "fedgate.inbox.create" filter: "fedgate.*" → false
func matchPattern(subject, pattern string) bool {
	subjectTokens := strings.Split(subject, ".")
	patternTokens := strings.Split(pattern, ".")

	for i, token := range patternTokens {
		if token == ">" {
			// Greedy wildcard needs at least one token of its own
			if len(subjectTokens) <= i {
				return false
			}
			return tokensMatch(subjectTokens[:i], patternTokens[:i])
		}
	}

	return len(subjectTokens) == len(patternTokens) && tokensMatch(subjectTokens, patternTokens)
}

func tokensMatch(subjectTokens, patternTokens []string) bool {
	for i, patternToken := range patternTokens {
		if patternToken != "*" && patternToken != subjectTokens[i] {
			return false
		}
	}
	return true
}

// patternCoveredBy checks if every subject matching subjectPattern is
// captured by filterPattern
// subjectPattern: "fedgate.inbox.>" filterPattern: "fedgate.>" → true
// subjectPattern: "fedgate.inbox.>" filterPattern: "fedgate.inbox.*" → false
func patternCoveredBy(subjectPattern, filterPattern string) bool {
	if filterPattern == ">" {
		return true
	}

	subjectTokens := strings.Split(subjectPattern, ".")
	filterTokens := strings.Split(filterPattern, ".")

	hasFilterGreedy := filterTokens[len(filterTokens)-1] == ">"
	hasSubjectGreedy := subjectTokens[len(subjectTokens)-1] == ">"

	if hasFilterGreedy {
		filterPrefix := filterTokens[:len(filterTokens)-1]
		subjectPrefix := subjectTokens
		if hasSubjectGreedy {
			subjectPrefix = subjectTokens[:len(subjectTokens)-1]
		}
		if len(subjectPrefix) < len(filterPrefix) {
			return false
		}
		for i := range filterPrefix {
			if filterPrefix[i] != "*" && filterPrefix[i] != subjectPrefix[i] {
				return false
			}
		}
		return true
	}

	if hasSubjectGreedy || len(subjectTokens) != len(filterTokens) {
		return false
	}

	for i := range filterTokens {
		if filterTokens[i] == "*" {
			continue
		}
		if subjectTokens[i] == "*" || filterTokens[i] != subjectTokens[i] {
			return false
		}
	}
	return true
}

// isSystemStream checks if a stream is a system stream (deprioritized)
func isSystemStream(name string) bool {
	return strings.HasPrefix(name, "$") || strings.HasPrefix(name, "KV_")
}
