package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/polo52/polochat/internal/nl2sql"
)

type Company struct {
	CUIL         int64
	Name         string
	Sector       string
	Employees    int
	Notes        string
	IngressDate  time.Time
	WorkingHours string
}

type Vehicle struct {
	CUIL      int64
	Kind      string
	Plate     string
	Schedule  string
	Frequency string
}

type Contact struct {
	CUIL    int64
	Kind    string
	Name    string
	Phone   string
	Email   string
	Address string
	Website string
}

type User struct {
	CUIL         int64
	Name         string
	Email        string
	PasswordHash string
	Status       string
	RegisteredOn time.Time
}

type ParkService struct {
	Name        string
	Kind        string
	Description string
}

type Subscription struct {
	CUIL        int64
	ServiceName string
	Since       time.Time
}

type Lot struct {
	Number      string
	SurfaceM2   float64
	Owner       string
	CUIL        int64
	Unallocated bool
}

// Generator produces a deterministic park population for a given seed.
type Generator struct {
	rnd          *rand.Rand
	earliestYear int
	now          func() time.Time
	plates       map[string]struct{}
	cuils        map[int64]struct{}
	names        map[string]struct{}
}

func NewGenerator(seed int64, earliestYear int) *Generator {
	return &Generator{
		rnd:          rand.New(rand.NewSource(seed)),
		earliestYear: earliestYear,
		now:          func() time.Time { return time.Now().UTC() },
		plates:       map[string]struct{}{},
		cuils:        map[int64]struct{}{},
		names:        map[string]struct{}{},
	}
}

var (
	namePrefixes = []string{"Agro", "Metalúrgica", "Logística", "Transportes", "Frigorífico", "Plásticos", "Maderera", "Química", "Textil", "Alimentos"}
	nameSuffixes = []string{"del Sur", "Polo", "Norte", "Pampeana", "Núñez", "Ríos", "San Martín", "Ituzaingó", "La Unión", "Santa Fe"}
	legalForms   = []string{"S.A.", "S.R.L.", "S.A.S.", ""}
	sectors      = []string{"agroindustria", "metalurgia", "logística", "alimentos", "química", "plásticos", "maderera", "textil", "servicios"}
	schedules    = []string{"L a V 8 a 17", "L a V 7 a 16", "L a S 6 a 14", "24 hs", "L a V 9 a 18"}
	vehicleKinds = []string{"camión", "utilitario", "semirremolque", "autoelevador", "camioneta"}
	frequencies  = []string{"diaria", "semanal", "quincenal", "mensual"}
	contactKinds = []string{"comercial", "técnico", "administración", "seguridad"}
	firstNames   = []string{"María", "Juan", "Lucía", "Martín", "Sofía", "Diego", "Valentina", "Pablo", "Carla", "Nicolás"}
	lastNames    = []string{"González", "Rodríguez", "Fernández", "López", "Martínez", "Pérez", "Gómez", "Díaz", "Sosa", "Romero"}
	streets      = []string{"Ruta 9 km 52", "Calle 3", "Calle 7", "Av. del Parque", "Colectora Este"}

	ParkServices = []ParkService{
		{Name: "Seguridad perimetral", Kind: "seguridad", Description: "Vigilancia 24 hs y control de acceso"},
		{Name: "Recolección de residuos", Kind: "ambiental", Description: "Retiro de residuos industriales asimilables"},
		{Name: "Fibra óptica", Kind: "conectividad", Description: "Enlace simétrico de 300 Mbps"},
		{Name: "Balanza pública", Kind: "logística", Description: "Pesaje de camiones hasta 60 t"},
		{Name: "Sala de capacitación", Kind: "institucional", Description: "Reserva de aula para 40 personas"},
	}
)

func (g *Generator) NextCompany() Company {
	name := g.uniqueCompanyName()
	ingress := g.pickDate(g.earliestYear)
	notes := ""
	if g.rnd.Intn(4) == 0 {
		notes = pickOne(g.rnd, []string{"ampliación en curso", "solicitó lote adicional", "certificación ISO 9001", "opera con turnos rotativos"})
	}
	return Company{
		CUIL:         g.uniqueCUIL(),
		Name:         name,
		Sector:       pickOne(g.rnd, sectors),
		Employees:    5 + g.rnd.Intn(250),
		Notes:        notes,
		IngressDate:  ingress,
		WorkingHours: pickOne(g.rnd, schedules),
	}
}

func (g *Generator) NextVehicle(owner Company) Vehicle {
	return Vehicle{
		CUIL:      owner.CUIL,
		Kind:      pickOne(g.rnd, vehicleKinds),
		Plate:     g.uniquePlate(),
		Schedule:  pickOne(g.rnd, schedules),
		Frequency: pickOne(g.rnd, frequencies),
	}
}

func (g *Generator) NextContact(owner Company) Contact {
	first := pickOne(g.rnd, firstNames)
	last := pickOne(g.rnd, lastNames)
	domain := slug(owner.Name) + ".com.ar"
	return Contact{
		CUIL:    owner.CUIL,
		Kind:    pickOne(g.rnd, contactKinds),
		Name:    first + " " + last,
		Phone:   fmt.Sprintf("+54 9 341 %03d-%04d", g.rnd.Intn(1000), g.rnd.Intn(10000)),
		Email:   fmt.Sprintf("%s.%s@%s", slug(first), slug(last), domain),
		Address: fmt.Sprintf("%s %d, Polo 52", pickOne(g.rnd, streets), 100+g.rnd.Intn(900)),
		Website: "https://www." + domain,
	}
}

func (g *Generator) NextUser(owner Company) User {
	base := slug(owner.Name)
	name := base
	for i := 2; ; i++ {
		if _, taken := g.names[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s%d", base, i)
	}
	g.names[name] = struct{}{}
	status := "activo"
	if g.rnd.Intn(10) == 0 {
		status = "inactivo"
	}
	return User{
		CUIL:  owner.CUIL,
		Name:  name,
		Email: name + "@" + base + ".com.ar",
		// Demo rows never authenticate.
		PasswordHash: "$demo$" + fmt.Sprintf("%016x", g.rnd.Uint64()),
		Status:       status,
		RegisteredOn: g.pickDate(owner.IngressDate.Year()),
	}
}

// NextSubscriptions picks up to n distinct park services for owner.
func (g *Generator) NextSubscriptions(owner Company, n int) []Subscription {
	if n > len(ParkServices) {
		n = len(ParkServices)
	}
	order := g.rnd.Perm(len(ParkServices))[:n]
	out := make([]Subscription, 0, n)
	for _, idx := range order {
		out = append(out, Subscription{
			CUIL:        owner.CUIL,
			ServiceName: ParkServices[idx].Name,
			Since:       g.pickDate(owner.IngressDate.Year()),
		})
	}
	return out
}

// NextLot numbers lots sequentially; roughly a fifth stay unallocated.
func (g *Generator) NextLot(index int, companies []Company) Lot {
	lot := Lot{
		Number:    fmt.Sprintf("L-%03d", index+1),
		SurfaceM2: round2(1500 + g.rnd.Float64()*18500),
	}
	if len(companies) == 0 || g.rnd.Intn(5) == 0 {
		lot.Unallocated = true
		lot.Owner = "Consorcio Polo 52"
		return lot
	}
	owner := companies[g.rnd.Intn(len(companies))]
	lot.CUIL = owner.CUIL
	lot.Owner = owner.Name
	return lot
}

func (g *Generator) uniqueCompanyName() string {
	for attempt := 0; ; attempt++ {
		name := strings.TrimSpace(fmt.Sprintf("%s %s %s", pickOne(g.rnd, namePrefixes), pickOne(g.rnd, nameSuffixes), pickOne(g.rnd, legalForms)))
		if attempt > 20 {
			name = fmt.Sprintf("%s %d", name, attempt)
		}
		if _, taken := g.names["company:"+name]; !taken {
			g.names["company:"+name] = struct{}{}
			return name
		}
	}
}

func (g *Generator) uniqueCUIL() int64 {
	for {
		cuil := CUIL(30, 10_000_000+g.rnd.Int63n(89_999_999))
		if _, taken := g.cuils[cuil]; !taken {
			g.cuils[cuil] = struct{}{}
			return cuil
		}
	}
}

// Mercosur format AA000AA.
func (g *Generator) uniquePlate() string {
	const letters = "ABCDEFGHJKLMNPRSTUVWXYZ"
	for {
		plate := fmt.Sprintf("%c%c%03d%c%c",
			letters[g.rnd.Intn(len(letters))], letters[g.rnd.Intn(len(letters))],
			g.rnd.Intn(1000),
			letters[g.rnd.Intn(len(letters))], letters[g.rnd.Intn(len(letters))])
		if _, taken := g.plates[plate]; !taken {
			g.plates[plate] = struct{}{}
			return plate
		}
	}
}

func (g *Generator) pickDate(fromYear int) time.Time {
	now := g.now()
	start := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !start.Before(now) {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	days := int(now.Sub(start).Hours() / 24)
	picked := start.AddDate(0, 0, g.rnd.Intn(days+1))
	return time.Date(picked.Year(), picked.Month(), picked.Day(), 0, 0, 0, 0, time.UTC)
}

// CUIL builds an 11-digit CUIL/CUIT from a type prefix and an 8-digit body,
// appending the modulo 11 verifier.
func CUIL(prefix int, body int64) int64 {
	digits := fmt.Sprintf("%02d%08d", prefix, body)
	weights := [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, r := range digits {
		sum += int(r-'0') * weights[i]
	}
	verifier := 11 - sum%11
	switch verifier {
	case 11:
		verifier = 0
	case 10:
		verifier = 9
	}
	return int64(prefix)*1_000_000_000 + body*10 + int64(verifier)
}

func slug(value string) string {
	value = nl2sql.NormalizeUtterance(value)
	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
