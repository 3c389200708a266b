package stream

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// testTopics returns a standard topic configuration for tests.
func testTopics() Topics {
	return Topics{
		Findings:  "dd.findings",
		Critical:  "dd.findings.critical",
		Financial: "dd.findings.financial",
		Identity:  "dd.findings.identity",
	}
}

func TestTopicRouter(t *testing.T) {
	router := NewTopicRouter(testTopics())

	tests := []struct {
		name     string
		finding  Finding
		expected []string
	}{
		{
			name:     "low severity email",
			finding:  Finding{Category: scan.CategoryEmail, Severity: scan.SeverityLow},
			expected: []string{"dd.findings"},
		},
		{
			name:     "critical card",
			finding:  Finding{Category: scan.CategoryPaymentCard, Severity: scan.SeverityCritical},
			expected: []string{"dd.findings", "dd.findings.critical", "dd.findings.financial"},
		},
		{
			name:     "iban",
			finding:  Finding{Category: scan.CategoryIBAN, Severity: scan.SeverityHigh},
			expected: []string{"dd.findings", "dd.findings.financial"},
		},
		{
			name:     "bank account",
			finding:  Finding{Category: scan.CategoryBankAccount, Severity: scan.SeverityMedium},
			expected: []string{"dd.findings", "dd.findings.financial"},
		},
		{
			name:     "critical national id",
			finding:  Finding{Category: scan.CategoryNationalID, Severity: scan.SeverityCritical},
			expected: []string{"dd.findings", "dd.findings.critical", "dd.findings.identity"},
		},
		{
			name:     "passport",
			finding:  Finding{Category: scan.CategoryPassport, Severity: scan.SeverityHigh},
			expected: []string{"dd.findings", "dd.findings.identity"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics := router.Route(tt.finding)
			require.NotEmpty(t, topics)
			assert.Equal(t, "dd.findings", topics[0], "every finding goes to the findings topic first")
			sort.Strings(topics)
			sort.Strings(tt.expected)
			assert.Equal(t, tt.expected, topics)
		})
	}
}

func TestTopicRouter_SkipsUnsetAndDuplicateTopics(t *testing.T) {
	router := NewTopicRouter(Topics{Findings: "all", Critical: "all"})
	topics := router.Route(Finding{Category: scan.CategoryIBAN, Severity: scan.SeverityCritical})
	assert.Equal(t, []string{"all"}, topics)
}

func TestNewFinding(t *testing.T) {
	reg, err := scan.Build([]scan.PatternSpec{{
		ID:        "visa",
		Namespace: "comm",
		Category:  "payment-card",
		Pattern:   `4\d{15}`,
		Policy:    scan.Policy{Severity: "critical"},
	}})
	require.NoError(t, err)

	text := "card 4111111111111111 on file"
	res, err := scan.NewEngine(reg).Find(text, scan.FindOptions{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)

	f := NewFinding(res.Matches[0], text, "batch-1", "item-7", true)

	sum := sha256.Sum256([]byte("4111111111111111"))
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "batch-1", f.BatchID)
	assert.Equal(t, "item-7", f.ItemID)
	assert.Equal(t, "comm/visa", f.PatternID)
	assert.Equal(t, "comm", f.Namespace)
	assert.Equal(t, scan.CategoryPaymentCard, f.Category)
	assert.Equal(t, scan.SeverityCritical, f.Severity)
	assert.Equal(t, 5, f.Start)
	assert.Equal(t, 21, f.End)
	assert.Equal(t, hex.EncodeToString(sum[:]), f.ValueHash)
	assert.Equal(t, HashSHA256, f.ValueHashAlg)
	assert.True(t, f.Redacted)
	assert.WithinDuration(t, time.Now(), f.Timestamp, 5*time.Second)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "4111111111111111", "the event never carries the raw value")

	all := NewFindings(res.Matches, text, "batch-1", "item-7", false)
	require.Len(t, all, 1)
	assert.NotEqual(t, f.ID, all[0].ID)
}

func TestNewFindingWithValueKey(t *testing.T) {
	reg, err := scan.Build([]scan.PatternSpec{{
		ID:        "ssn",
		Namespace: "us",
		Category:  "national-id",
		Pattern:   `\d{3}-\d{2}-\d{4}`,
	}})
	require.NoError(t, err)

	text := "ssn 123-45-6789"
	res, err := scan.NewEngine(reg).Find(text, scan.FindOptions{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)

	key := []byte("finding-key")
	f := NewFinding(res.Matches[0], text, "b", "i", false, WithValueKey(key))

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("123-45-6789"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), f.ValueHash)
	assert.Equal(t, HashHMACSHA256, f.ValueHashAlg)

	plain := sha256.Sum256([]byte("123-45-6789"))
	assert.NotEqual(t, hex.EncodeToString(plain[:]), f.ValueHash, "keyed digest differs from the unkeyed one")

	other := NewFinding(res.Matches[0], text, "b", "i", false, WithValueKey([]byte("other-key")))
	assert.NotEqual(t, f.ValueHash, other.ValueHash)
}

// published represents a single (topic, finding) pair captured by a callback.
type published struct {
	topic   string
	finding Finding
}

func TestLocalStreamer_Stream(t *testing.T) {
	streamer := NewLocalStreamer(&StreamerConfig{Topics: testTopics()})

	var mu sync.Mutex
	var results []published
	streamer.OnPublish(func(topic string, finding Finding) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, published{topic: topic, finding: finding})
	})

	findings := []Finding{
		{ID: "test-1", Category: scan.CategoryEmail, Severity: scan.SeverityLow},
		{ID: "test-2", Category: scan.CategoryPaymentCard, Severity: scan.SeverityCritical},
	}
	require.NoError(t, streamer.Stream(context.Background(), findings))

	mu.Lock()
	defer mu.Unlock()
	// test-1 -> findings; test-2 -> findings, critical, financial
	require.Len(t, results, 4)
	assert.Equal(t, "test-1", results[0].finding.ID)
	assert.Equal(t, "dd.findings", results[0].topic)
}

func TestLocalStreamer_MultipleCallbacks(t *testing.T) {
	streamer := NewLocalStreamer(nil)

	counts := make([]int, 3)
	for i := range counts {
		idx := i
		streamer.OnPublish(func(string, Finding) { counts[idx]++ })
	}

	findings := []Finding{
		{ID: "a", Category: scan.CategoryEmail, Severity: scan.SeverityLow},
		{ID: "b", Category: scan.CategoryPhone, Severity: scan.SeverityHigh},
	}
	require.NoError(t, streamer.Stream(context.Background(), findings))
	assert.Equal(t, []int{2, 2, 2}, counts)
}

func TestLocalStreamer_Closed(t *testing.T) {
	streamer := NewLocalStreamer(nil)
	require.NoError(t, streamer.Close())
	require.NoError(t, streamer.Close(), "close is idempotent")

	err := streamer.Stream(context.Background(), []Finding{{ID: "x"}})
	assert.ErrorIs(t, err, ErrStreamerClosed)
}

func TestLocalStreamer_ContextCancellation(t *testing.T) {
	streamer := NewLocalStreamer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := streamer.Stream(ctx, []Finding{{ID: "ctx-1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStreamer_EmptyFindings(t *testing.T) {
	streamer := NewLocalStreamer(nil)
	calls := 0
	streamer.OnPublish(func(string, Finding) { calls++ })

	require.NoError(t, streamer.Stream(context.Background(), nil))
	assert.Zero(t, calls)
}

func mockConfig() *sarama.Config {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func TestKafkaStreamer_RoutesAndEncodes(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())

	var mu sync.Mutex
	var topics []string
	check := func(msg *sarama.ProducerMessage) error {
		mu.Lock()
		topics = append(topics, msg.Topic)
		mu.Unlock()

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "b1:i1" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var f Finding
		return json.Unmarshal(value, &f)
	}
	for i := 0; i < 3; i++ {
		producer.ExpectInputWithMessageCheckerFunctionAndSucceed(check)
	}

	ks := NewKafkaStreamerWithProducer(producer, &StreamerConfig{Topics: testTopics()}, nil)
	err := ks.Stream(context.Background(), []Finding{{
		ID:       "f1",
		BatchID:  "b1",
		ItemID:   "i1",
		Category: scan.CategoryIBAN,
		Severity: scan.SeverityCritical,
	}})
	require.NoError(t, err)
	require.NoError(t, ks.Close())

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(topics)
	assert.Equal(t, []string{"dd.findings", "dd.findings.critical", "dd.findings.financial"}, topics)
}

func TestKafkaStreamer_ForwardsProduceErrors(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, mockConfig())
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	ks := NewKafkaStreamerWithProducer(producer, &StreamerConfig{Topics: Topics{Findings: "dd.findings"}}, nil)
	require.NoError(t, ks.Stream(context.Background(), []Finding{{ID: "f1", Category: scan.CategoryEmail}}))

	select {
	case err := <-ks.Errors():
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		assert.Contains(t, err.Error(), "dd.findings")
	case <-time.After(5 * time.Second):
		t.Fatal("expected a produce error")
	}

	require.NoError(t, ks.Close())
	assert.ErrorIs(t, ks.Stream(context.Background(), []Finding{{ID: "f2"}}), ErrStreamerClosed)
}

func TestBuildSaramaConfig(t *testing.T) {
	sc := buildSaramaConfig(&StreamerConfig{
		BatchSize:     50,
		FlushInterval: 250 * time.Millisecond,
		Compression:   "snappy",
		RequiredAcks:  "local",
		MaxRetries:    7,
		RetryBackoff:  time.Second,
	})
	assert.Equal(t, sarama.CompressionSnappy, sc.Producer.Compression)
	assert.Equal(t, sarama.WaitForLocal, sc.Producer.RequiredAcks)
	assert.Equal(t, 50, sc.Producer.Flush.Messages)
	assert.Equal(t, 250*time.Millisecond, sc.Producer.Flush.Frequency)
	assert.Equal(t, 7, sc.Producer.Retry.Max)
	assert.Equal(t, time.Second, sc.Producer.Retry.Backoff)
	assert.True(t, sc.Producer.Return.Successes)

	sc = buildSaramaConfig(&StreamerConfig{Compression: "zstd"})
	assert.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.NoError(t, sc.Validate())
}

func TestDefaultStreamerConfig(t *testing.T) {
	cfg := DefaultStreamerConfig()
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "datadetector.findings", cfg.Topics.Findings)
	assert.Equal(t, "datadetector.findings.financial", cfg.Topics.Financial)
	assert.Equal(t, "local", cfg.RequiredAcks)
}

func TestNewKafkaStreamerRequiresBrokers(t *testing.T) {
	_, err := NewKafkaStreamer(&StreamerConfig{}, nil)
	assert.Error(t, err)
}
