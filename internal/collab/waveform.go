package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	containertypes "github.com/docker/docker/api/types/container"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/google/uuid"

	"github.com/knmi/sdsrules/pkg/errs"
	"github.com/knmi/sdsrules/pkg/sds"
)

// DockerWaveformAnalyzer runs the quality-metadata, PPSD, and prune tools as
// one-shot containers, treating them as pure functions of a descriptor's
// archived file. Adapted from the teacher module's common/docker.go
// ContainerRun helper: create, start, wait for WaitConditionNotRunning,
// collect stdout, remove. The tool's stdout is expected to be a single JSON
// document.
type DockerWaveformAnalyzer struct {
	cli                   *client.Client
	qualityImage          string
	ppsdImage             string
	pruneImage            string
	archiveMount          string
}

// DockerWaveformOptions names the images for each analysis and the host
// path the containers bind-mount to reach the SDS archive.
type DockerWaveformOptions struct {
	QualityImage string
	PPSDImage    string
	PruneImage   string
	ArchiveMount string
}

// NewDockerWaveformAnalyzer connects to the local Docker daemon using
// ambient environment configuration (DOCKER_HOST etc.), the same
// client.NewClientWithOpts(client.FromEnv) pattern the teacher module uses.
func NewDockerWaveformAnalyzer(opts DockerWaveformOptions) (*DockerWaveformAnalyzer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: connect to docker: %v", errs.ErrIoError, err)
	}
	return &DockerWaveformAnalyzer{
		cli:          cli,
		qualityImage: opts.QualityImage,
		ppsdImage:    opts.PPSDImage,
		pruneImage:   opts.PruneImage,
		archiveMount: opts.ArchiveMount,
	}, nil
}

func (a *DockerWaveformAnalyzer) run(ctx context.Context, image string, env []string, mountMode string) ([]byte, error) {
	resp, err := a.cli.ContainerCreate(
		ctx,
		&containertypes.Config{
			Image:        image,
			Env:          env,
			AttachStdout: true,
			AttachStderr: true,
		},
		&containertypes.HostConfig{
			AutoRemove: true,
			Binds:      []string{a.archiveMount + ":" + a.archiveMount + ":" + mountMode},
		},
		&networktypes.NetworkingConfig{},
		&ocispec.Platform{},
		"sdsrules-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create container for %s: %v", errs.ErrIoError, image, err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: start container for %s: %v", errs.ErrIoError, image, err)
	}

	statusCh, errCh := a.cli.ContainerWait(ctx, resp.ID, containertypes.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("%w: wait for container %s: %v", errs.ErrIoError, image, err)
		}
	case <-statusCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	logs, err := a.cli.ContainerLogs(ctx, resp.ID, containertypes.LogsOptions{ShowStdout: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read logs for %s: %v", errs.ErrIoError, image, err)
	}
	defer logs.Close()

	output, err := io.ReadAll(logs)
	if err != nil {
		return nil, fmt.Errorf("%w: drain logs for %s: %v", errs.ErrIoError, image, err)
	}
	return output, nil
}

// QualityMetadata runs the quality-metadata image against d's archived file
// and parses its JSON stdout into a field map for the Dublin Core / WFCatalog
// document.
func (a *DockerWaveformAnalyzer) QualityMetadata(ctx context.Context, d sds.Descriptor) (map[string]any, error) {
	out, err := a.run(ctx, a.qualityImage, []string{"SDS_FILE=" + d.FilePath()}, "ro")
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		return nil, fmt.Errorf("%w: parse quality metadata output: %v", errs.ErrIoError, err)
	}
	return fields, nil
}

// PPSDSegments runs the PPSD image and parses its JSON array of per-segment
// power spectral density summaries.
func (a *DockerWaveformAnalyzer) PPSDSegments(ctx context.Context, d sds.Descriptor) ([]map[string]any, error) {
	out, err := a.run(ctx, a.ppsdImage, []string{"SDS_FILE=" + d.FilePath()}, "ro")
	if err != nil {
		return nil, err
	}
	var segments []map[string]any
	if err := json.Unmarshal(out, &segments); err != nil {
		return nil, fmt.Errorf("%w: parse ppsd output: %v", errs.ErrIoError, err)
	}
	return segments, nil
}

// Prune runs the prune image, which writes the gap-compacted file to
// outputPath inside the shared archive mount.
func (a *DockerWaveformAnalyzer) Prune(ctx context.Context, d sds.Descriptor, outputPath string) error {
	_, err := a.run(ctx, a.pruneImage, []string{
		"SDS_FILE=" + d.FilePath(),
		"OUTPUT_FILE=" + outputPath,
	}, "rw")
	return err
}
