// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package cache provides a Redis-backed cache manager: connection pooling,
a background health check, and JSON convenience methods.

# Overview

Manager wraps a *redis.Client, giving callers a single place to manage
the connection lifecycle (dial, health check, close) plus Get/Set and
their JSON-marshaling counterparts. The diagram cache's write-through
layer and dirty-set tracking go through Manager.Raw() for the sorted
sets, sets, and pipelines Manager itself doesn't wrap.

# Core types

  - Manager: owns the redis.Client and its config, exposing Get/Set,
    GetJSON/SetJSON, Ping/Close, and Raw for direct client access.
  - Config: connection settings (address, password, DB index, pool
    size, default TTL, health check interval).

# Capabilities

  - Key/value read-write in both raw-string and JSON-marshaled form.
  - Connection pooling via PoolSize/MinIdleConns.
  - Background health check: periodic Ping, logging failures via zap.
  - Graceful shutdown: Close releases the underlying connection.
  - Error semantics: ErrCacheMiss sentinel and IsCacheMiss helper.
*/
package cache
