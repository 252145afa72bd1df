package seed

import (
	"reflect"
	"strconv"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 2, 19, 7, 30, 0, 0, time.UTC)

func newTestGenerator(seed int64) *Generator {
	g := NewGenerator(seed, 2008)
	g.now = func() time.Time { return fixedNow }
	return g
}

func TestGeneratorDeterministicForSeed(t *testing.T) {
	g1 := newTestGenerator(42)
	g2 := newTestGenerator(42)

	for i := 0; i < 5; i++ {
		c1, c2 := g1.NextCompany(), g2.NextCompany()
		if !reflect.DeepEqual(c1, c2) {
			t.Fatalf("company %d differs: %#v vs %#v", i, c1, c2)
		}
		if v1, v2 := g1.NextVehicle(c1), g2.NextVehicle(c2); !reflect.DeepEqual(v1, v2) {
			t.Fatalf("vehicle %d differs: %#v vs %#v", i, v1, v2)
		}
	}
}

func TestGeneratorKeysAreUnique(t *testing.T) {
	g := newTestGenerator(99)

	cuils := map[int64]struct{}{}
	plates := map[string]struct{}{}
	users := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		company := g.NextCompany()
		if _, ok := cuils[company.CUIL]; ok {
			t.Fatalf("duplicate cuil: %d", company.CUIL)
		}
		cuils[company.CUIL] = struct{}{}

		vehicle := g.NextVehicle(company)
		if _, ok := plates[vehicle.Plate]; ok {
			t.Fatalf("duplicate patente: %s", vehicle.Plate)
		}
		plates[vehicle.Plate] = struct{}{}

		user := g.NextUser(company)
		if _, ok := users[user.Name]; ok {
			t.Fatalf("duplicate usuario: %s", user.Name)
		}
		users[user.Name] = struct{}{}
	}
}

func TestGeneratorCompanyShape(t *testing.T) {
	g := newTestGenerator(7)
	company := g.NextCompany()

	if digits := strconv.FormatInt(company.CUIL, 10); len(digits) != 11 || digits[:2] != "30" {
		t.Fatalf("cuil = %d", company.CUIL)
	}
	if company.IngressDate.Before(time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)) || company.IngressDate.After(fixedNow) {
		t.Fatalf("fecha_ingreso = %s", company.IngressDate)
	}
	if company.IngressDate.Hour() != 0 || company.IngressDate.Minute() != 0 {
		t.Fatalf("fecha_ingreso carries a time of day: %s", company.IngressDate)
	}
	if company.Employees < 5 {
		t.Fatalf("cant_empleados = %d", company.Employees)
	}
}

func TestCUILVerifierDigit(t *testing.T) {
	cases := []struct {
		prefix int
		body   int64
		want   int64
	}{
		{prefix: 20, body: 12345678, want: 20123456786},
		{prefix: 30, body: 71234567, want: 30712345671},
	}
	for _, tc := range cases {
		if got := CUIL(tc.prefix, tc.body); got != tc.want {
			t.Fatalf("CUIL(%d, %d) = %d, want %d", tc.prefix, tc.body, got, tc.want)
		}
	}
}

func TestNextSubscriptionsAreDistinctAndCapped(t *testing.T) {
	g := newTestGenerator(3)
	company := g.NextCompany()

	subs := g.NextSubscriptions(company, len(ParkServices)+3)
	if len(subs) != len(ParkServices) {
		t.Fatalf("subscriptions = %d, want %d", len(subs), len(ParkServices))
	}
	seen := map[string]struct{}{}
	for _, sub := range subs {
		if _, ok := seen[sub.ServiceName]; ok {
			t.Fatalf("duplicate servicio: %s", sub.ServiceName)
		}
		seen[sub.ServiceName] = struct{}{}
		if sub.Since.Before(company.IngressDate.AddDate(0, 0, -366)) {
			t.Fatalf("fecha_alta %s predates the company year", sub.Since)
		}
	}
}

func TestNextLotWithoutCompaniesIsUnallocated(t *testing.T) {
	g := newTestGenerator(5)
	lot := g.NextLot(0, nil)
	if !lot.Unallocated || lot.Number != "L-001" || lot.SurfaceM2 < 1500 {
		t.Fatalf("lot = %#v", lot)
	}
}

func TestSlugStripsAccentsAndPunctuation(t *testing.T) {
	if got := slug("Metalúrgica Núñez S.R.L."); got != "metalurgicanunezsrl" {
		t.Fatalf("slug = %q", got)
	}
}
