package config

type Config struct {
	Kanna Kanna `toml:"kanna"` // application metadata
	API   API   `toml:"api"`   // upstream catalog endpoint
	Sync  Sync  `toml:"sync"`  // run parameters
}

type Kanna struct {
	Version string `toml:"version"` // application version
}

type API struct {
	BaseURL string `toml:"base_url"` // catalog host, scheme included
	Version int    `toml:"version"`  // listing endpoint revision
}

type Sync struct {
	BatchSize   int `toml:"batch_size"`  // entities per batch
	Concurrency int `toml:"concurrency"` // max in-flight entity syncs
	Target      int `toml:"target"`      // stop after this many updates (0 = all)
}
