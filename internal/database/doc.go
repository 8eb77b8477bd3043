// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package database manages a gorm-backed connection pool: pool sizing,
a background health check, and transaction helpers.

# Overview

PoolManager wraps gorm's *sql.DB with the lifecycle concerns every
long-running service needs around a connection pool: idle/open
connection limits, connection lifetime, a background health check
that pings on an interval and logs failures via zap, and a clean
shutdown path.

# Core types

  - PoolManager: owns the gorm.DB and its underlying sql.DB, exposing
    Ping/Stats/Close and the transaction helpers below.
  - PoolConfig: pool tuning (max idle/open connections, connection
    lifetime, idle timeout, health check interval).
  - TransactionFunc: the callback type run inside a transaction.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Background health check: periodic PingContext, logging open/in-use/
    idle counts.
  - Transactions: WithTransaction runs one attempt; WithTransactionRetry
    adds exponential backoff retry for transient failures (deadlocks,
    serialization failures, dropped connections) — used by the token
    tracker's batch writer.
*/
package database
