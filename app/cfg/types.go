package cfg

type Cfg struct {
	Port         string
	APIAccessKey string
	UserAgent    string
	UnsplashKey  string
	SourcesFile  string
	Timezone     string
	Debug        bool
	Version      string
}
