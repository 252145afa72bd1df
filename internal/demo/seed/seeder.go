// Package seed fills a migrated park database with plausible demo data so the
// chat pipeline has something to answer about outside production.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const truncateSQL = `TRUNCATE empresa_servicio, lote, rol_usuario, usuario, contacto, vehiculo, servicio, empresa RESTART IDENTITY CASCADE`

type Summary struct {
	Companies     int
	Vehicles      int
	Contacts      int
	Users         int
	Subscriptions int
	Lots          int
}

type Service struct {
	cfg       Config
	db        *sql.DB
	log       *slog.Logger
	generator *Generator
}

func NewService(cfg Config, db *sql.DB, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if cfg.Companies <= 0 {
		return nil, errors.New("companies must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:       cfg,
		db:        db,
		log:       logger,
		generator: NewGenerator(cfg.Seed, cfg.EarliestIngressYear),
	}, nil
}

// Run writes one full population in a single transaction. Rows that collide
// with existing keys are skipped, so reruns with the same seed are no-ops.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	if s.cfg.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StatementTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.cfg.Truncate {
		if _, err := tx.ExecContext(ctx, truncateSQL); err != nil {
			return Summary{}, fmt.Errorf("truncate park tables: %w", err)
		}
	}
	for _, service := range ParkServices {
		if err := insertParkService(ctx, tx, service); err != nil {
			return Summary{}, err
		}
	}

	var summary Summary
	companies := make([]Company, 0, s.cfg.Companies)
	for i := 0; i < s.cfg.Companies; i++ {
		batch := s.nextCompanyBatch()
		inserted, err := insertCompany(ctx, tx, batch.company)
		if err != nil {
			return Summary{}, err
		}
		if !inserted {
			continue
		}
		summary.Companies++
		companies = append(companies, batch.company)

		for _, vehicle := range batch.vehicles {
			n, err := execCount(ctx, tx, insertVehicleSQL, vehicleArgs(vehicle)...)
			if err != nil {
				return Summary{}, fmt.Errorf("insert vehiculo: %w", err)
			}
			summary.Vehicles += n
		}
		for _, contact := range batch.contacts {
			if _, err := tx.ExecContext(ctx, insertContactSQL, contactArgs(contact)...); err != nil {
				return Summary{}, fmt.Errorf("insert contacto: %w", err)
			}
			summary.Contacts++
		}
		for _, user := range batch.users {
			inserted, err := insertUser(ctx, tx, user)
			if err != nil {
				return Summary{}, err
			}
			if inserted {
				summary.Users++
			}
		}
		for _, subscription := range batch.subscriptions {
			n, err := execCount(ctx, tx, insertSubscriptionSQL, subscription.CUIL, subscription.ServiceName, subscription.Since)
			if err != nil {
				return Summary{}, fmt.Errorf("insert empresa_servicio: %w", err)
			}
			summary.Subscriptions += n
		}
	}

	for i := 0; i < s.cfg.Lots; i++ {
		n, err := execCount(ctx, tx, insertLotSQL, lotArgs(s.generator.NextLot(i, companies))...)
		if err != nil {
			return Summary{}, fmt.Errorf("insert lote: %w", err)
		}
		summary.Lots += n
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit seed transaction: %w", err)
	}
	s.log.Info(
		"seeded park demo data",
		slog.Int64("seed", s.cfg.Seed),
		slog.Int("companies", summary.Companies),
		slog.Int("vehicles", summary.Vehicles),
		slog.Int("contacts", summary.Contacts),
		slog.Int("users", summary.Users),
		slog.Int("subscriptions", summary.Subscriptions),
		slog.Int("lots", summary.Lots),
	)
	return summary, nil
}

type companyBatch struct {
	company       Company
	vehicles      []Vehicle
	contacts      []Contact
	users         []User
	subscriptions []Subscription
}

// nextCompanyBatch draws a company and all of its children up front so the
// generator sequence does not depend on which rows already exist.
func (s *Service) nextCompanyBatch() companyBatch {
	batch := companyBatch{company: s.generator.NextCompany()}
	for j := 0; j < s.cfg.VehiclesPerCompany; j++ {
		batch.vehicles = append(batch.vehicles, s.generator.NextVehicle(batch.company))
	}
	for j := 0; j < s.cfg.ContactsPerCompany; j++ {
		batch.contacts = append(batch.contacts, s.generator.NextContact(batch.company))
	}
	for j := 0; j < s.cfg.UsersPerCompany; j++ {
		batch.users = append(batch.users, s.generator.NextUser(batch.company))
	}
	batch.subscriptions = s.generator.NextSubscriptions(batch.company, s.cfg.ServicesPerCompany)
	return batch
}

const (
	insertServiceSQL = `
INSERT INTO servicio (nombre, tipo_servicio, descripcion)
SELECT $1::varchar, $2::varchar, $3::text
WHERE NOT EXISTS (SELECT 1 FROM servicio WHERE nombre = $1::varchar)`

	insertCompanySQL = `
INSERT INTO empresa (cuil, nombre, rubro, cant_empleados, observaciones, fecha_ingreso, horario_trabajo)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (cuil) DO NOTHING`

	insertVehicleSQL = `
INSERT INTO vehiculo (cuil, tipo_vehiculo, patente, horarios, frecuencia)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (patente) DO NOTHING`

	insertContactSQL = `
INSERT INTO contacto (cuil, tipo_contacto, nombre, telefono, email, direccion, pagina_web)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertUserSQL = `
INSERT INTO usuario (nombre, email, contrasena, estado, fecha_registro, cuil)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
RETURNING id_usuario`

	insertUserRoleSQL = `
INSERT INTO rol_usuario (id_usuario, id_rol)
SELECT $1::bigint, id_rol FROM rol WHERE tipo_rol = 'admin_empresa'
ON CONFLICT DO NOTHING`

	insertSubscriptionSQL = `
INSERT INTO empresa_servicio (cuil, id_servicio, fecha_alta)
SELECT $1::bigint, id_servicio, $3::date FROM servicio WHERE nombre = $2
ORDER BY id_servicio
LIMIT 1
ON CONFLICT DO NOTHING`

	insertLotSQL = `
INSERT INTO lote (numero, superficie_m2, dueno, cuil)
VALUES ($1, $2, $3, $4)
ON CONFLICT (numero) DO NOTHING`
)

func insertParkService(ctx context.Context, tx *sql.Tx, service ParkService) error {
	if _, err := tx.ExecContext(ctx, insertServiceSQL, service.Name, service.Kind, service.Description); err != nil {
		return fmt.Errorf("insert servicio %q: %w", service.Name, err)
	}
	return nil
}

func insertCompany(ctx context.Context, tx *sql.Tx, company Company) (bool, error) {
	n, err := execCount(ctx, tx, insertCompanySQL,
		company.CUIL, company.Name, company.Sector, company.Employees,
		nullString(company.Notes), company.IngressDate, company.WorkingHours)
	if err != nil {
		return false, fmt.Errorf("insert empresa %q: %w", company.Name, err)
	}
	return n > 0, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, user User) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, insertUserSQL,
		user.Name, user.Email, user.PasswordHash, user.Status, user.RegisteredOn, user.CUIL).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert usuario %q: %w", user.Name, err)
	}
	if _, err := tx.ExecContext(ctx, insertUserRoleSQL, id); err != nil {
		return false, fmt.Errorf("grant admin_empresa to usuario %d: %w", id, err)
	}
	return true, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func vehicleArgs(v Vehicle) []any {
	return []any{v.CUIL, v.Kind, v.Plate, v.Schedule, v.Frequency}
}

func contactArgs(c Contact) []any {
	return []any{c.CUIL, c.Kind, c.Name, c.Phone, c.Email, c.Address, c.Website}
}

func lotArgs(l Lot) []any {
	var cuil any
	if !l.Unallocated {
		cuil = l.CUIL
	}
	return []any{l.Number, l.SurfaceM2, l.Owner, cuil}
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
