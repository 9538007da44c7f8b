package kafka

import (
	"testing"

	"github.com/Shopify/sarama"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestGetSaramaConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Kafka.ClientID = "ebilling-test"

	sc := GetSaramaConfig(cfg)
	assert.Equal(t, "ebilling-test", sc.ClientID)
	assert.True(t, sc.Producer.Return.Successes)
	assert.False(t, sc.Net.SASL.Enable)
	assert.False(t, sc.Net.TLS.Enable)

	cfg.Kafka.UseSASL = true
	cfg.Kafka.SASLMechanism = sarama.SASLTypePlaintext
	cfg.Kafka.SASLUser = "user"
	cfg.Kafka.SASLPassword = "secret"

	sc = GetSaramaConfig(cfg)
	assert.True(t, sc.Net.SASL.Enable)
	assert.True(t, sc.Net.TLS.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), sc.Net.SASL.Mechanism)
	assert.Equal(t, "user", sc.Net.SASL.User)
}
