package catalog

import "testing"

func TestLookupProduct(t *testing.T) {
	tests := []struct {
		category  string
		productID string
		wantName  string
		wantOK    bool
	}{
		{"co2bj", "59s19z5m", "CO2 Detector", true},
		{"ms", "ludzroix", "Smart Lock", true},
		{"ms", "isk2p555", "Smart Lock", true},
		{"ms", "yy2bmcoh", "Smart Lock", true},
		{"ms", "mqc2hevy", "Smart Lock", true},
		{"szjqr", "3yqdo5yt", "CUBETOUCH 1s", true},
		{"szjqr", "xhf790if", "CubeTouch II", true},
		{"szjqr", "blliqpsj", "Fingerbot Plus", true},
		{"szjqr", "ndvkgsrm", "Fingerbot Plus", true},
		{"szjqr", "yiihr7zh", "Fingerbot Plus", true},
		{"szjqr", "neq16kgd", "Fingerbot Plus", true},
		{"szjqr", "ltak7e1p", "Fingerbot", true},
		{"szjqr", "y6kttvd6", "Fingerbot", true},
		{"szjqr", "yrnk7mnn", "Fingerbot", true},
		{"szjqr", "nvr2rocq", "Fingerbot", true},
		{"szjqr", "bnt7wajf", "Fingerbot", true},
		{"szjqr", "rvdceqjh", "Fingerbot", true},
		{"szjqr", "5xhbk964", "Fingerbot", true},
		{"wk", "drlajpqc", "Thermostatic Radiator Valve", true},
		{"wk", "nhj2j7su", "Thermostatic Radiator Valve", true},
		{"wsdcg", "ojzlzzsw", "Soil moisture sensor", true},
		{"znhsb", "cdlandip", "Smart water bottle", true},
		{"ggq", "6pahkcau", "Irrigation computer", true},
		{"ggq", "hfgdqhho", "Irrigation computer", true},
		{"jtmspro", "hc7n0urm", "A1 Ultra-JM", true},
		{"szjqr", "unknown", "", false},
		{"nope", "59s19z5m", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.category+"/"+tt.productID, func(t *testing.T) {
			info, ok := LookupProduct(tt.category, tt.productID)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if info.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", info.Name, tt.wantName)
			}
			if ok && info.Manufacturer != DefaultManufacturer {
				t.Errorf("Manufacturer = %q, want %q", info.Manufacturer, DefaultManufacturer)
			}
		})
	}
}

func TestLookupProduct_Features(t *testing.T) {
	lock, _ := LookupProduct("ms", "mqc2hevy")
	if lock.Lock == nil {
		t.Fatal("mqc2hevy has no lock info")
	}
	if *lock.Lock != (LockInfo{AlarmLock: 21, UnlockBLE: 19, UnlockFingerprint: 12, UnlockPassword: 13}) {
		t.Errorf("lock = %+v", *lock.Lock)
	}

	plain, _ := LookupProduct("ms", "ludzroix")
	if plain.Lock != nil || plain.Fingerbot != nil {
		t.Error("ludzroix should have no features")
	}

	plus, _ := LookupProduct("szjqr", "blliqpsj")
	if plus.Fingerbot == nil || plus.Fingerbot.ManualControl != 17 || plus.Fingerbot.Program != 121 || plus.Fingerbot.Switch != 2 {
		t.Errorf("fingerbot plus = %+v", plus.Fingerbot)
	}

	basic, _ := LookupProduct("szjqr", "ltak7e1p")
	if basic.Fingerbot == nil || basic.Fingerbot.ManualControl != 0 || basic.Fingerbot.Program != 121 {
		t.Errorf("fingerbot = %+v", basic.Fingerbot)
	}

	cube, _ := LookupProduct("szjqr", "3yqdo5yt")
	want := FingerbotInfo{Switch: 1, Mode: 2, UpPosition: 5, DownPosition: 6, HoldTime: 3, ReversePositions: 4}
	if cube.Fingerbot == nil || *cube.Fingerbot != want {
		t.Errorf("cubetouch = %+v", cube.Fingerbot)
	}
}

func TestLookupProduct_ReturnsCopy(t *testing.T) {
	first, _ := LookupProduct("szjqr", "blliqpsj")
	first.Fingerbot.Switch = 99
	first.Name = "changed"

	second, _ := LookupProduct("szjqr", "blliqpsj")
	if second.Fingerbot.Switch != 2 || second.Name != "Fingerbot Plus" {
		t.Errorf("catalog mutated through returned value: %+v", second)
	}
}

func TestLookupProduct_CategoryFallback(t *testing.T) {
	fallback := product("Generic sensor")
	database["test-fallback"] = CategoryInfo{
		Products: map[string]ProductInfo{"known": product("Known")},
		Info:     &fallback,
	}
	t.Cleanup(func() { delete(database, "test-fallback") })

	info, ok := LookupProduct("test-fallback", "other")
	if !ok || info.Name != "Generic sensor" {
		t.Errorf("fallback = %+v, %v", info, ok)
	}
	info, ok = LookupProduct("test-fallback", "known")
	if !ok || info.Name != "Known" {
		t.Errorf("listed = %+v, %v", info, ok)
	}
}

func TestCategoriesAndProducts(t *testing.T) {
	cats := Categories()
	want := []string{"co2bj", "ggq", "jtmspro", "ms", "szjqr", "wk", "wsdcg", "znhsb"}
	if len(cats) != len(want) {
		t.Fatalf("Categories() = %v, want %v", cats, want)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Errorf("Categories()[%d] = %q, want %q", i, cats[i], want[i])
		}
	}

	if got := len(Products("szjqr")); got != 13 {
		t.Errorf("len(Products(szjqr)) = %d, want 13", got)
	}
	if Products("nope") != nil {
		t.Error("Products(unknown) should be nil")
	}

	all := All()
	if len(all) != 25 {
		t.Errorf("len(All()) = %d, want 25", len(all))
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Category > cur.Category || (prev.Category == cur.Category && prev.ProductID >= cur.ProductID) {
			t.Errorf("All() not sorted at %d: %s/%s then %s/%s", i, prev.Category, prev.ProductID, cur.Category, cur.ProductID)
		}
	}
}
