package mapping

// BaseFields are the product fields every OpenDB category shares.
func BaseFields() []Field {
	return []Field{
		{Column: ColumnOpenDBID, Path: "opendb_id", Type: TypeUUID, Required: true},
		{Column: ColumnName, Path: "metadata.name", Type: TypeString, Required: true},
		{Column: ColumnManufacturer, Path: "metadata.manufacturer", Type: TypeString},
		{Column: ColumnPartNumbers, Path: "metadata.part_numbers", Type: TypeStrings},
		{Column: ColumnSeries, Path: "metadata.series", Type: TypeString},
		{Column: ColumnVariant, Path: "metadata.variant", Type: TypeString},
		{Column: ColumnReleaseYear, Path: "metadata.releaseYear", Type: TypeInt},
		{Column: ColumnManufacturerURL, Path: "general_product_information.manufacturer_url", Type: TypeString},
		{Column: ColumnPrice, Path: "price", Type: TypeDecimal, Required: true},
		{Column: "amazon_sku", Path: "general_product_information.amazon_sku", Type: TypeString},
		{Column: "newegg_sku", Path: "general_product_information.newegg_sku", Type: TypeString},
		{Column: "bestbuy_sku", Path: "general_product_information.bestbuy_sku", Type: TypeString},
		{Column: "walmart_sku", Path: "general_product_information.walmart_sku", Type: TypeString},
		{Column: "adorama_sku", Path: "general_product_information.adorama_sku", Type: TypeString},
	}
}

// CPU is the built-in processor mapping.
func CPU() *Mapping {
	fields := append(BaseFields(),
		Field{Column: "microarchitecture", Path: "microarchitecture", Type: TypeString},
		Field{Column: "core_family", Path: "coreFamily", Type: TypeString},
		Field{Column: "socket", Path: "socket", Type: TypeString},

		Field{Column: "cores_tot", Path: "cores.total", Type: TypeInt},
		Field{Column: "cores_perf", Path: "cores.performance", Type: TypeInt},
		Field{Column: "cores_eff", Path: "cores.efficiency", Type: TypeInt},
		Field{Column: "threads", Path: "cores.threads", Type: TypeInt},

		Field{Column: "clocks_perf_base", Path: "clocks.performance.base", Type: TypeInt},
		Field{Column: "clocks_perf_boost", Path: "clocks.performance.boost", Type: TypeInt},
		Field{Column: "clocks_eff_base", Path: "clocks.efficiency.base", Type: TypeInt},
		Field{Column: "clocks_eff_boost", Path: "clocks.efficiency.boost", Type: TypeInt},

		// l1 describes the cache layout as text, l2/l3 are sizes
		Field{Column: "cache_l1", Path: "cache.l1", Type: TypeString},
		Field{Column: "cache_l2", Path: "cache.l2", Type: TypeInt},
		Field{Column: "cache_l3", Path: "cache.l3", Type: TypeInt},

		Field{Column: "tdp", Path: "specifications.tdp", Type: TypeInt},

		Field{Column: "intgraph_model", Path: "specifications.integratedGraphics.model", Type: TypeString},
		Field{Column: "intgraph_base_clock", Path: "specifications.integratedGraphics.baseClock", Type: TypeInt},
		Field{Column: "intgraph_boost_clock", Path: "specifications.integratedGraphics.boostClock", Type: TypeInt},
		Field{Column: "intgraph_shader_count", Path: "specifications.integratedGraphics.shaderCount", Type: TypeInt},

		Field{Column: "ecc_support", Path: "specifications.eccSupport", Type: TypeBool},
		Field{Column: "includes_cooler", Path: "specifications.includesCooler", Type: TypeBool},
		Field{Column: "packaging", Path: "specifications.packaging", Type: TypeString},
		Field{Column: "lithography", Path: "specifications.lithography", Type: TypeString},
		Field{Column: "simul_multithread", Path: "specifications.simultaneousMultithreading", Type: TypeBool},

		// memory support is in GB
		Field{Column: "mem_max_support", Path: "specifications.memory.maxSupport", Type: TypeInt},
		Field{Column: "mem_types", Path: "specifications.memory.types", Type: TypeStrings},
		Field{Column: "mem_channels", Path: "specifications.memory.channels", Type: TypeInt},
	)

	return &Mapping{
		Category:  "CPU",
		Name:      "CPU",
		Directory: "CPU",
		Fields:    fields,
	}
}
