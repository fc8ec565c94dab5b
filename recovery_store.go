package appsec

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recoveryKeyPrefix      = "arc"
	recoveryRecordVersion1 = 1
)

// recoveryRecord is the stored state of one outstanding recovery code.
// Only a hash of the code is persisted.
type recoveryRecord struct {
	UserID    string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// RecoveryStore keeps outstanding password recovery codes in Redis so a
// code issued by one server instance can be consumed on another. One
// code per account; issuing a new code replaces the old one.
type RecoveryStore struct {
	redis  *redis.Client
	prefix string
}

// NewRecoveryStore wraps a Redis client.
func NewRecoveryStore(redisClient *redis.Client) *RecoveryStore {
	return &RecoveryStore{redis: redisClient, prefix: recoveryKeyPrefix}
}

func (s *RecoveryStore) key(appID, username string) string {
	return s.prefix + ":" + appID + ":" + username
}

// hashRecoveryCode derives the stored digest of a plaintext code.
func hashRecoveryCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// Save stores a recovery code for the account, replacing any existing
// one. The Redis TTL matches the code lifetime so abandoned codes age
// out on their own.
func (s *RecoveryStore) Save(ctx context.Context, appID, username, userID, code string, ttl time.Duration) error {
	record := &recoveryRecord{
		UserID:    userID,
		CodeHash:  hashRecoveryCode(code),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	encoded, err := encodeRecoveryRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(appID, username), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
	return nil
}

// Consume validates a presented code against the stored one. A matching
// code is deleted and the record returned. A mismatch charges one
// attempt; once attempts are exhausted the record is deleted. Runs under
// WATCH so concurrent attempts cannot double-spend a code.
func (s *RecoveryStore) Consume(ctx context.Context, appID, username, code string, maxAttempts int) (string, error) {
	const maxRetries = 4
	key := s.key(appID, username)
	providedHash := hashRecoveryCode(code)

	for i := 0; i < maxRetries; i++ {
		var userID string

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecoveryRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRecoveryCodeInvalid
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrRecoveryCodeInvalid
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrRecoveryCodeInvalid
				}

				updated, err := encodeRecoveryRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRecoveryCodeInvalid
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			userID = record.UserID
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return "", ErrRecoveryCodeInvalid
			case errors.Is(err, ErrRecoveryCodeInvalid):
				return "", err
			default:
				return "", fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
			}
		}

		return userID, nil
	}

	return "", ErrRecoveryCodeInvalid
}

func encodeRecoveryRecord(record *recoveryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recoveryRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("recovery record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecoveryRecord(data []byte) (*recoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersion1 {
		return nil, errors.New("invalid recovery record version")
	}

	record := &recoveryRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
