package cache

import (
	"encoding/json"
	"log"
	"strings"
)

// consumerSecretKeyPrefix namespaces consumer credentials in every backend.
// Writes under this prefix are subject to the pollution check below.
const consumerSecretKeyPrefix = "consumer_secret:"

// ConsumerSecretKey builds the cache key for a consumer's credential.
func ConsumerSecretKey(consumerID string) string {
	return consumerSecretKeyPrefix + consumerID
}

type consumerIdentity struct {
	Consumer struct {
		ID string `json:"id"`
	} `json:"consumer"`
}

// pollutedConsumerSecret reports whether a write under a consumer-secret key
// carries a payload whose embedded consumer id does not match the key. Such
// a write must be dropped, never cached: serving one consumer's credential
// for another's lookup is worse than a miss. Payloads that do not decode are
// left to the ordinary read path, which treats them as misses.
func pollutedConsumerSecret(key string, value []byte) bool {
	consumerID, ok := strings.CutPrefix(key, consumerSecretKeyPrefix)
	if !ok {
		return false
	}

	var identity consumerIdentity
	if err := json.Unmarshal(value, &identity); err != nil {
		return false
	}
	if identity.Consumer.ID == "" || identity.Consumer.ID == consumerID {
		return false
	}

	log.Print("kongmint: cache pollution rejected for key ", key, ": payload consumer ", identity.Consumer.ID)
	return true
}
