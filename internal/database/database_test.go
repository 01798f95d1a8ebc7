package database

import (
	"path/filepath"
	"testing"

	"github.com/bossmod/tracker/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_MigratesAllModels(t *testing.T) {
	db, err := OpenSqlite(MemoryDSN(t.Name()))
	require.NoError(t, err)

	require.NoError(t, Setup(db))

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}

	var info model.TrackerInfo
	require.NoError(t, db.First(&info).Error)
	assert.Equal(t, "encounter-tracker", info.Name)

	// second setup keeps the single info row
	require.NoError(t, Setup(db))
	var count int64
	db.Model(&model.TrackerInfo{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestManager_ConnectSqliteAndDump(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "dump.db")
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.ConnectSqlite(dumpPath))
	defer m.Close()
	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)

	require.NoError(t, m.Setup())
	require.NoError(t, m.DB.Create(&model.Encounter{OID: 0x35FD, Name: "Hesperos"}).Error)

	require.NoError(t, m.DumpMemoryToDisk())
	// a second dump replaces the first file
	require.NoError(t, m.DumpMemoryToDisk())

	disk, err := OpenSqlite(dumpPath)
	require.NoError(t, err)
	var enc model.Encounter
	require.NoError(t, disk.First(&enc).Error)
	assert.Equal(t, "Hesperos", enc.Name)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := OpenSqlite(MemoryDSN(t.Name()))
	require.NoError(t, err)

	err = DumpMemoryDBToDisk(db, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite file path not set")
}

func TestManager_CloseWithoutConnect(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.NoError(t, m.Close())
}
