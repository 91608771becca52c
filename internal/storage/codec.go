package storage

import (
	"encoding/json"
	"errors"

	"podds/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp written on new records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// stamp fills in the current version on records that carry none.
func stamp(v *model.VersionedRecord) {
	if v.SchemaVersion == 0 && v.CodecVersion == 0 {
		*v = CurrentVersion()
	}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeGenome(g model.GenomeRecord) ([]byte, error) {
	stamp(&g.VersionedRecord)
	return json.Marshal(g)
}

func DecodeGenome(data []byte) (model.GenomeRecord, error) {
	var genome model.GenomeRecord
	if err := json.Unmarshal(data, &genome); err != nil {
		return model.GenomeRecord{}, err
	}
	if err := checkVersion(genome.VersionedRecord); err != nil {
		return model.GenomeRecord{}, err
	}
	return genome, nil
}

func EncodeBirth(b model.BirthRecord) ([]byte, error) {
	stamp(&b.VersionedRecord)
	return json.Marshal(b)
}

func DecodeBirth(data []byte) (model.BirthRecord, error) {
	var birth model.BirthRecord
	if err := json.Unmarshal(data, &birth); err != nil {
		return model.BirthRecord{}, err
	}
	if err := checkVersion(birth.VersionedRecord); err != nil {
		return model.BirthRecord{}, err
	}
	return birth, nil
}

func EncodeDeath(d model.DeathRecord) ([]byte, error) {
	stamp(&d.VersionedRecord)
	return json.Marshal(d)
}

func DecodeDeath(data []byte) (model.DeathRecord, error) {
	var death model.DeathRecord
	if err := json.Unmarshal(data, &death); err != nil {
		return model.DeathRecord{}, err
	}
	if err := checkVersion(death.VersionedRecord); err != nil {
		return model.DeathRecord{}, err
	}
	return death, nil
}

func EncodeTickStats(s model.TickStats) ([]byte, error) {
	stamp(&s.VersionedRecord)
	return json.Marshal(s)
}

func DecodeTickStats(data []byte) (model.TickStats, error) {
	var stats model.TickStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return model.TickStats{}, err
	}
	if err := checkVersion(stats.VersionedRecord); err != nil {
		return model.TickStats{}, err
	}
	return stats, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
