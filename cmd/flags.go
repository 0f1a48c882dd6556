package cmd

// Flags shared by every command.
var (
	configPath    string
	LogJSON       bool
	NoColor       bool
	logLevel      string
	quiet         bool
	verbose       bool
	allowInsecure bool
)

// compress flags.
var (
	outputURI        string
	force            bool
	hashLength       int
	hashFunc         string
	compression      string
	chunkerAlgo      string
	minChunkSize     uint32
	avgChunkSize     uint32
	maxChunkSize     uint32
	windowSize       uint32
	inputCompression string
	hashWorkers      int
	noManifest       bool
	tempDir          string
)

// clone flags.
var (
	seedFiles     []string
	seedStdin     bool
	seedOutput    bool
	verifyOutput  bool
	fetchWorkers  int
	maxBatchBytes string
	httpHeaders   []string
	httpRetries   int
)

// info flags.
var infoFormat string
