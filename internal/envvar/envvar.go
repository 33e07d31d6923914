package envvar

const (
	// EduvoxEnv is the environment variable used to determine the environment
	EduvoxEnv = "EDUVOX_ENV"

	// EduvoxServerHTTPPort is the environment variable used to determine the HTTP port
	EduvoxServerHTTPPort = "EDUVOX_SERVER_HTTP_PORT"

	// EduvoxServerGRPCPort is the environment variable used to determine the gRPC port
	EduvoxServerGRPCPort = "EDUVOX_SERVER_GRPC_PORT"

	// EduvoxModelsPath overrides the directory models are downloaded into
	EduvoxModelsPath = "EDUVOX_MODELS_PATH"
)
