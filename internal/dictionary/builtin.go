package dictionary

// Builtin returns a small in-memory dictionary covering the common
// market price fields. Providers serve it when no dictionary is loaded.
func Builtin() *Dictionary {
	d := New()
	d.Info = Info{
		DictionaryID: 1,
		FieldVersion: "4.20.29",
		EnumVersion:  "17.11",
	}
	defs := []FieldDef{
		{FID: 1, Acronym: "PROD_PERM", DDEAcronym: "PROD PERM", Type: FieldTypeUint, Length: 5},
		{FID: 2, Acronym: "RDNDISPLAY", DDEAcronym: "RDN DISPLAY", Type: FieldTypeUint, Length: 3},
		{FID: 3, Acronym: "DSPLY_NAME", DDEAcronym: "DISPLAY NAME", Type: FieldTypeRMTESStr, Length: 16},
		{FID: 4, Acronym: "RDN_EXCHID", DDEAcronym: "IDN EXCHANGE ID", Type: FieldTypeEnum, Length: 3, EnumLength: 3},
		{FID: 6, Acronym: "TRDPRC_1", DDEAcronym: "LAST", RipplesTo: 7, Type: FieldTypeReal, Length: 17},
		{FID: 7, Acronym: "TRDPRC_2", DDEAcronym: "LAST 1", RipplesTo: 8, Type: FieldTypeReal, Length: 17},
		{FID: 8, Acronym: "TRDPRC_3", DDEAcronym: "LAST 2", Type: FieldTypeReal, Length: 17},
		{FID: 11, Acronym: "NETCHNG_1", DDEAcronym: "NET.CHNG", Type: FieldTypeReal, Length: 17},
		{FID: 12, Acronym: "HIGH_1", DDEAcronym: "HIGH", Type: FieldTypeReal, Length: 17},
		{FID: 13, Acronym: "LOW_1", DDEAcronym: "LOW", Type: FieldTypeReal, Length: 17},
		{FID: 14, Acronym: "PRCTCK_1", DDEAcronym: "TICK", Type: FieldTypeEnum, Length: 1, EnumLength: 1},
		{FID: 15, Acronym: "CURRENCY", DDEAcronym: "CURRENCY", Type: FieldTypeEnum, Length: 5, EnumLength: 3},
		{FID: 16, Acronym: "TRADE_DATE", DDEAcronym: "TRADE DATE", Type: FieldTypeDate, Length: 11},
		{FID: 18, Acronym: "TRDTIM_1", DDEAcronym: "TRADE TIME", Type: FieldTypeTime, Length: 5},
		{FID: 21, Acronym: "HST_CLOSE", DDEAcronym: "HIST CLOSE", Type: FieldTypeReal, Length: 17},
		{FID: 22, Acronym: "BID", DDEAcronym: "BID", RipplesTo: 23, Type: FieldTypeReal, Length: 17},
		{FID: 23, Acronym: "BID_1", DDEAcronym: "BID 1", Type: FieldTypeReal, Length: 17},
		{FID: 25, Acronym: "ASK", DDEAcronym: "ASK", RipplesTo: 26, Type: FieldTypeReal, Length: 17},
		{FID: 26, Acronym: "ASK_1", DDEAcronym: "ASK 1", Type: FieldTypeReal, Length: 17},
		{FID: 30, Acronym: "BIDSIZE", DDEAcronym: "BID SIZE", Type: FieldTypeReal, Length: 17},
		{FID: 31, Acronym: "ASKSIZE", DDEAcronym: "ASK SIZE", Type: FieldTypeReal, Length: 17},
		{FID: 32, Acronym: "ACVOL_1", DDEAcronym: "VOL ACCUMULATED", Type: FieldTypeReal, Length: 17},
		{FID: 267, Acronym: "ASK_TIME", DDEAcronym: "ASK TIME", Type: FieldTypeTime, Length: 5},
		{FID: 1025, Acronym: "QUOTIM", DDEAcronym: "QUOTE TIME", Type: FieldTypeTime, Length: 8},
		{FID: 3404, Acronym: "NEWS", DDEAcronym: "NEWS", Type: FieldTypeAsciiStr, Length: 4},
	}
	for _, def := range defs {
		_ = d.AddField(def)
	}
	d.AddEnumTable(EnumTable{
		FIDs: []int16{4},
		Values: []EnumValue{
			{Code: 0, Display: "   "},
			{Code: 1, Display: "ASE"},
			{Code: 2, Display: "NYS"},
			{Code: 3, Display: "BOS"},
			{Code: 96, Display: "NMS"},
		},
	})
	d.AddEnumTable(EnumTable{
		FIDs: []int16{14},
		Values: []EnumValue{
			{Code: 0, Display: " "},
			{Code: 1, Display: "^"},
			{Code: 2, Display: "v"},
		},
	})
	d.AddEnumTable(EnumTable{
		FIDs: []int16{15},
		Values: []EnumValue{
			{Code: 0, Display: "   "},
			{Code: 124, Display: "CAD"},
			{Code: 840, Display: "USD"},
			{Code: 978, Display: "EUR"},
		},
	})
	return d
}
