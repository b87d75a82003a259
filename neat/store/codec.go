package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

const CurrentSchemaVersion = 1

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeGenome(rec GenomeRecord) ([]byte, error) {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = CurrentSchemaVersion
	}
	return json.Marshal(rec)
}

func DecodeGenome(data []byte) (GenomeRecord, error) {
	var rec GenomeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return GenomeRecord{}, err
	}
	if err := checkVersion(rec.SchemaVersion); err != nil {
		return GenomeRecord{}, err
	}
	return rec, nil
}

func EncodeLog(rec LogRecord) ([]byte, error) {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = CurrentSchemaVersion
	}
	return json.Marshal(rec)
}

func DecodeLog(data []byte) (LogRecord, error) {
	var rec LogRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return LogRecord{}, err
	}
	if err := checkVersion(rec.SchemaVersion); err != nil {
		return LogRecord{}, err
	}
	return rec, nil
}

func checkVersion(version int) error {
	if version != CurrentSchemaVersion {
		return fmt.Errorf("%w: schema=%d want %d", ErrVersionMismatch, version, CurrentSchemaVersion)
	}
	return nil
}
