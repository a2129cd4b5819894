package migrate

import (
	"strings"
	"time"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// trackingTable is the `_migrations` table created by Init (spec §4.9).
const trackingTable = "_migrations"

// Record is one row of the `_migrations` tracking table.
type Record struct {
	Version     string    `gorm:"column:version;primaryKey"`
	Description string    `gorm:"column:description"`
	AppliedAt   time.Time `gorm:"column:applied_at"`
	Checksum    string    `gorm:"column:checksum"`
}

func (Record) TableName() string { return trackingTable }

// Runner executes migrations against one relational connection.
type Runner struct {
	gdb *gorm.DB
}

// New binds a Runner to gdb. Apply runs Init itself; Status and
// Rollback expect the tracking table to exist already.
func New(gdb *gorm.DB) *Runner {
	return &Runner{gdb: gdb}
}

func (r *Runner) log() *logger.Logger { return logger.Migrate }

// Init creates the `_migrations` tracking table if it does not already
// exist (spec §4.9 `init`).
func (r *Runner) Init() error {
	if err := r.gdb.AutoMigrate(&Record{}); err != nil {
		return dberrors.NewDriver(err, false)
	}
	return nil
}

func (r *Runner) applied() (map[string]Record, error) {
	var rows []Record
	if err := r.gdb.Order("version ASC").Find(&rows).Error; err != nil {
		return nil, dberrors.NewDriver(err, isTransient(err))
	}
	out := make(map[string]Record, len(rows))
	for _, row := range rows {
		out[row.Version] = row
	}
	return out, nil
}

// Status reports every applied migration (from the tracking table) and
// every pending one (present in dir but not yet recorded), both
// ordered by version (spec §4.9 `status`).
func (r *Runner) Status(dir string) (applied []Record, pending []*Migration, err error) {
	appliedByVersion, err := r.applied()
	if err != nil {
		return nil, nil, err
	}
	files, err := loadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range appliedByVersion {
		applied = append(applied, rec)
	}
	sortRecords(applied)

	for _, m := range files {
		if _, ok := appliedByVersion[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func sortRecords(rs []Record) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Version < rs[j-1].Version; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

// verifyIntegrity checks every already-applied migration's recorded
// checksum against its on-disk file before Apply touches anything
// (spec §4.9 Integrity): a changed file raises ChecksumMismatch, a
// missing file raises MigrationFileMissing.
func verifyIntegrity(appliedByVersion map[string]Record, files []*Migration) error {
	byVersion := make(map[string]*Migration, len(files))
	for _, f := range files {
		byVersion[f.Version] = f
	}
	for version, rec := range appliedByVersion {
		f, ok := byVersion[version]
		if !ok {
			return dberrors.NewMigrationFileMissing(version)
		}
		if f.Checksum != rec.Checksum {
			return dberrors.NewChecksumMismatch(version)
		}
	}
	return nil
}

// Apply runs every pending migration in ascending version order
// (spec §4.9 `apply`). Each migration runs in its own transaction: UP
// section, then the tracking-row insert, then commit. A failing
// statement rolls back that migration's transaction and halts the run
// without touching later files.
func (r *Runner) Apply(dir string) error {
	if err := r.Init(); err != nil {
		return err
	}
	appliedByVersion, err := r.applied()
	if err != nil {
		return err
	}
	files, err := loadDir(dir)
	if err != nil {
		return err
	}
	if err := verifyIntegrity(appliedByVersion, files); err != nil {
		return err
	}

	for _, m := range files {
		if _, ok := appliedByVersion[m.Version]; ok {
			continue
		}
		if err := r.applyOne(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) applyOne(m *Migration) error {
	err := r.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Up).Error; err != nil {
			return err
		}
		rec := Record{Version: m.Version, Description: m.Description, AppliedAt: time.Now().UTC(), Checksum: m.Checksum}
		return tx.Create(&rec).Error
	})
	if err != nil {
		r.log().Error("apply migration failed", zap.String("version", m.Version), zap.Error(err))
		return dberrors.NewDriver(err, isTransient(err))
	}
	r.log().Info("applied migration", zap.String("version", m.Version))
	return nil
}

// Rollback reverses the last `steps` applied migrations in descending
// version order (spec §4.9 `rollback`): each runs its DOWN section and
// deletes its tracking row inside one transaction.
func (r *Runner) Rollback(dir string, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	appliedByVersion, err := r.applied()
	if err != nil {
		return err
	}
	var recs []Record
	for _, rec := range appliedByVersion {
		recs = append(recs, rec)
	}
	sortRecords(recs)
	if len(recs) > steps {
		recs = recs[len(recs)-steps:]
	}
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		m, err := findFile(dir, rec.Version)
		if err != nil {
			return err
		}
		if err := r.rollbackOne(rec, m); err != nil {
			return err
		}
	}
	return nil
}

func findFile(dir, version string) (*Migration, error) {
	files, err := loadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, m := range files {
		if m.Version == version {
			return m, nil
		}
	}
	return nil, dberrors.NewMigrationFileMissing(version)
}

func (r *Runner) rollbackOne(rec Record, m *Migration) error {
	err := r.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&Record{}, "version = ?", rec.Version).Error
	})
	if err != nil {
		r.log().Error("rollback migration failed", zap.String("version", rec.Version), zap.Error(err))
		return dberrors.NewDriver(err, isTransient(err))
	}
	r.log().Info("rolled back migration", zap.String("version", rec.Version))
	return nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "deadline exceeded", "connection reset", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
