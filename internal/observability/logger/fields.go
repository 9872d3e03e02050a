package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field is a structured log field.
type Field = zap.Field

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Identity

// PlayerID is the id of the player record bound to the session.
func PlayerID(v string) zap.Field { return zap.String("player_id", v) }

// EpicAccountID is the subject of an Auth interface token.
func EpicAccountID(v string) zap.Field { return zap.String("epic_account_id", v) }

// ProductUserID is the subject of a Connect interface token (PUID).
func ProductUserID(v string) zap.Field { return zap.String("epic_product_user_id", v) }

// Interface names the identity sub-system a token came from (auth, connect).
func Interface(v string) zap.Field { return zap.String("interface", v) }

// Key store

func KID(v string) zap.Field { return zap.String("kid", v) }
func URL(v string) zap.Field { return zap.String("url", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }
func Count(v int) zap.Field { return zap.Int("count", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
