package match

// Irish given names and the spellings speech-to-text produces for them.
// The first entry of each group is its canonical form. Entries are already normalized.
var irishNameGroups = [][]string{
	// girls
	{"niamh", "neeve", "neve", "nieve", "neev"},
	{"siobhan", "shivawn", "shivaun", "chevonne", "shevaun", "shivon"},
	{"aoife", "eefa", "eefah", "ifa"},
	{"caoimhe", "keeva", "queeva", "kweeva"},
	{"saoirse", "seersha", "sorsha", "sersha"},
	{"clodagh", "cloda", "kloda", "chlodagh", "clodah"},
	{"roisin", "rosheen", "roshin", "rosheena"},
	{"grainne", "granya", "grania", "grawnya"},
	{"aine", "anya", "awnya", "onya"},
	{"maire", "maura", "moira", "moya"},
	{"ciara", "kiera", "kiara", "keira", "kira"},
	{"aisling", "ashling", "ashlyn", "aislinn", "ashlin"},
	{"sinead", "shinade", "shinaid", "sinaid"},
	{"orla", "orlagh", "orlaith"},
	{"eimear", "emer", "eemer", "eimer"},
	{"mairead", "maraid", "mareid"},
	{"deirdre", "deedra", "deardra"},
	{"blathnaid", "blawnid", "blanid"},
	{"meabh", "maeve", "mave", "meave"},
	{"fiadh", "fia", "feeah"},
	{"ailbhe", "alva", "alvy"},
	{"una", "oona", "oonagh", "unagh"},
	{"caitriona", "catriona", "katriona", "katrina"},
	// boys
	{"sean", "shawn", "shaun", "shaan", "shon"},
	{"eoin", "owen", "eoghan", "ewan"},
	{"oisin", "osheen", "usheen", "oshin"},
	{"ciaran", "kieran", "keiran", "kieron", "kyran"},
	{"tadhg", "tige", "teague", "teig", "taig"},
	{"cian", "kian", "keean", "kean"},
	{"conor", "connor", "conner", "konnor"},
	{"darragh", "dara", "darach", "darra"},
	{"ruairi", "rory", "ruari", "ruaidhri"},
	{"fionn", "finn", "fin"},
	{"padraig", "patrick", "paddy", "padraic"},
	{"diarmuid", "dermot", "diarmaid", "dermod"},
	{"niall", "neil", "neal", "neill"},
	{"cathal", "cahal", "cahel"},
	{"donnacha", "donagh", "donough", "donncha"},
	{"colm", "colum", "collum"},
	{"lorcan", "lorkan", "lurcan"},
	{"peadar", "peter", "pader"},
	{"seamus", "shaymus", "shamus"},
	{"fearghal", "fergal", "feargal"},
	{"cormac", "cormick", "cormack"},
	{"rian", "ryan", "rhian"},
	{"senan", "seanan", "shenan"},
	{"domhnall", "donal", "donall"},
	{"eamon", "eamonn", "aymon"},
	{"tomas", "thomas", "tommas"},
	{"micheal", "michael", "meehall"},
	{"aodhan", "aidan", "aedan", "aiden"},
	{"caoimhin", "kevin", "keevin"},
}

// aliasToCanonical maps every spelling, canonical included, to its canonical form
var aliasToCanonical = buildAliasIndex(irishNameGroups)

func buildAliasIndex(groups [][]string) map[string]string {
	idx := make(map[string]string)
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		canonical := g[0]
		for _, name := range g {
			idx[name] = canonical
		}
	}
	return idx
}

// Canonical returns the canonical Irish spelling for a normalized name token
func Canonical(token string) (string, bool) {
	c, ok := aliasToCanonical[token]
	return c, ok
}

// SameIrishName reports whether two normalized tokens are spellings of the same Irish name
func SameIrishName(a, b string) bool {
	ca, ok := aliasToCanonical[a]
	if !ok {
		return false
	}
	cb, ok := aliasToCanonical[b]
	return ok && ca == cb
}

// AliasGroups returns a copy of the alias table
func AliasGroups() [][]string {
	out := make([][]string, len(irishNameGroups))
	for i, g := range irishNameGroups {
		out[i] = append([]string(nil), g...)
	}
	return out
}
