package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex edoc_01HZX5T3V9YQ8W2K8FJOOFXTY1
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_INTEGRATION_CONFIG = "eicfg"
	UUID_PREFIX_DOCUMENT           = "edoc"
	UUID_PREFIX_DOCUMENT_FILE      = "efile"
	UUID_PREFIX_PACKAGE            = "epkg"
	UUID_PREFIX_SUBSCRIPTION       = "esub"
	UUID_PREFIX_USAGE_PERIOD       = "eusage"
	UUID_PREFIX_CREDIT             = "ecredit"
	UUID_PREFIX_ALERT              = "ealert"
	UUID_PREFIX_AUDIT_LOG          = "eaudit"
	UUID_PREFIX_EVENT              = "eevt"
)
