package cfg

type RedisConfig struct {
	Addr string
}

func (l *Loader) loadRedis() RedisConfig {
	return RedisConfig{
		Addr: l.requireEnv("REDIS_ADDR"),
	}
}
