package catalog

// product builds a ProductInfo with the default manufacturer.
func product(name string) ProductInfo {
	return ProductInfo{Name: name, Manufacturer: DefaultManufacturer}
}

// same maps every id to info.
func same(info ProductInfo, ids ...string) map[string]ProductInfo {
	m := make(map[string]ProductInfo, len(ids))
	for _, id := range ids {
		m[id] = info
	}
	return m
}

func merge(maps ...map[string]ProductInfo) map[string]ProductInfo {
	out := make(map[string]ProductInfo)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func withFingerbot(info ProductInfo, fb FingerbotInfo) ProductInfo {
	info.Fingerbot = &fb
	return info
}

func withLock(info ProductInfo, lock LockInfo) ProductInfo {
	info.Lock = &lock
	return info
}

var (
	cubeTouchFingerbot = FingerbotInfo{
		Switch:           1,
		Mode:             2,
		UpPosition:       5,
		DownPosition:     6,
		HoldTime:         3,
		ReversePositions: 4,
	}

	fingerbotPlus = FingerbotInfo{
		Switch:           2,
		Mode:             8,
		UpPosition:       15,
		DownPosition:     9,
		HoldTime:         10,
		ReversePositions: 11,
		ManualControl:    17,
		Program:          121,
	}

	fingerbot = FingerbotInfo{
		Switch:           2,
		Mode:             8,
		UpPosition:       15,
		DownPosition:     9,
		HoldTime:         10,
		ReversePositions: 11,
		Program:          121,
	}
)

var database = map[string]CategoryInfo{
	"co2bj": {
		Products: map[string]ProductInfo{
			"59s19z5m": product("CO2 Detector"),
		},
	},
	"ms": {
		Products: merge(
			same(product("Smart Lock"), "ludzroix", "isk2p555", "yy2bmcoh"),
			map[string]ProductInfo{
				"mqc2hevy": withLock(product("Smart Lock"), LockInfo{
					AlarmLock:         21,
					UnlockBLE:         19,
					UnlockFingerprint: 12,
					UnlockPassword:    13,
				}),
			},
		),
	},
	"szjqr": {
		Products: merge(
			map[string]ProductInfo{
				"3yqdo5yt": withFingerbot(product("CUBETOUCH 1s"), cubeTouchFingerbot),
				"xhf790if": withFingerbot(product("CubeTouch II"), cubeTouchFingerbot),
			},
			same(withFingerbot(product("Fingerbot Plus"), fingerbotPlus),
				"blliqpsj", "ndvkgsrm", "yiihr7zh", "neq16kgd"),
			same(withFingerbot(product("Fingerbot"), fingerbot),
				"ltak7e1p", "y6kttvd6", "yrnk7mnn", "nvr2rocq", "bnt7wajf", "rvdceqjh", "5xhbk964"),
		),
	},
	"wk": {
		Products: same(product("Thermostatic Radiator Valve"), "drlajpqc", "nhj2j7su"),
	},
	"wsdcg": {
		Products: map[string]ProductInfo{
			"ojzlzzsw": product("Soil moisture sensor"),
		},
	},
	"znhsb": {
		Products: map[string]ProductInfo{
			"cdlandip": product("Smart water bottle"),
		},
	},
	"ggq": {
		Products: same(product("Irrigation computer"), "6pahkcau", "hfgdqhho"),
	},
	"jtmspro": {
		Products: map[string]ProductInfo{
			"hc7n0urm": product("A1 Ultra-JM"),
		},
	},
}
