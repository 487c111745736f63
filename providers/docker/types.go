package docker

// ContainerConfig is the desired configuration of a docker_container.
type ContainerConfig struct {
	Image      string            `json:"image"`
	Name       string            `json:"name"`
	Command    []string          `json:"command"`
	Ports      map[string]int    `json:"ports"`
	Env        map[string]string `json:"env"`
	Networks   []string          `json:"networks"`
	Volumes    []string          `json:"volumes"`
	Labels     map[string]string `json:"labels"`
	WorkingDir string            `json:"working_dir"`
	User       string            `json:"user"`
	Restart    string            `json:"restart"`
}

type ContainerState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageName string `json:"image"`
}

type NetworkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type NetworkState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type VolumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type VolumeState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

type ImageConfig struct {
	Name         string `json:"name"`
	BuildContext string `json:"build_context"`
	Dockerfile   string `json:"dockerfile"`
}

type ImageState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
