/*
Package health provides per shard health checks that know about blacklisting.

A shard that was taken out of rotation with Manager.BlacklistShard is reported as healthy,
so a load balancer does not remove the whole node because of one deliberately disabled shard.
All other shards are checked with their backend Ping, unless native checks are skipped.

Checks are registered under the name connectionpool-<namespace>-<shardID>. Names of other
namespaces or names that do not carry a shard id are ignored.
*/
package health
