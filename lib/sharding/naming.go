package sharding

import (
	"fmt"
	"regexp"
	"strconv"
)

const shardNameFormat = "connectionpool-%s-%d"

var shardNamePattern = regexp.MustCompile(`^connectionpool-(\w+)-(\d+)$`)

// NamingProvider builds and parses the names health checks and connection pools of a namespace use.
type NamingProvider struct {
	namespace string
}

func NewNamingProvider(namespace string) NamingProvider {
	return NamingProvider{namespace: namespace}
}

func (p NamingProvider) Namespace() string {
	return p.namespace
}

// ShardName returns connectionpool-<namespace>-<shardID>.
func (p NamingProvider) ShardName(shardID int) string {
	return fmt.Sprintf(shardNameFormat, p.namespace, shardID)
}

// ShardID parses a shard name. Returns -1 if the name does not match the format.
func (p NamingProvider) ShardID(name string) int {
	m := shardNamePattern.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	id, err := strconv.Atoi(m[2])
	if err != nil {
		return -1
	}
	return id
}

// NamespaceOf returns the namespace part of a shard name, or "" if the name does not match.
func (p NamingProvider) NamespaceOf(name string) string {
	m := shardNamePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
