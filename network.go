package x402

import (
	"fmt"
	"strconv"
	"strings"
)

// NamespaceEIP155 is the CAIP-2 namespace of EVM chains.
const NamespaceEIP155 = "eip155"

// ParseNetwork splits a CAIP-2 identifier ("<namespace>:<reference>").
func ParseNetwork(network string) (namespace, reference string, err error) {
	namespace, reference, ok := strings.Cut(network, ":")
	if !ok || namespace == "" || reference == "" {
		return "", "", fmt.Errorf("invalid CAIP-2 network %q", network)
	}
	return namespace, reference, nil
}

// ChainID returns the numeric chain id of an eip155 network.
func ChainID(network string) (uint64, error) {
	namespace, reference, err := ParseNetwork(network)
	if err != nil {
		return 0, err
	}
	if namespace != NamespaceEIP155 {
		return 0, fmt.Errorf("network %q is not an %s chain", network, NamespaceEIP155)
	}
	id, err := strconv.ParseUint(reference, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chain id in network %q", network)
	}
	return id, nil
}

// NetworkFor formats a chain id as an eip155 CAIP-2 identifier.
func NetworkFor(chainID uint64) string {
	return fmt.Sprintf("%s:%d", NamespaceEIP155, chainID)
}
