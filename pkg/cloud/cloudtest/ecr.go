package cloudtest

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/davidthor/scdctl/pkg/names"
)

func (r *Repository) detail() ecrtypes.Repository {
	return ecrtypes.Repository{
		RepositoryName:     str(r.Name),
		RepositoryArn:      str(r.ARN),
		RepositoryUri:      str(r.URI),
		ImageTagMutability: ecrtypes.ImageTagMutability(r.Mutability),
	}
}

func (f *Fake) DescribeRepositories(ctx context.Context, in *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ecr", "DescribeRepositories", false); err != nil {
		return nil, err
	}
	out := &ecr.DescribeRepositoriesOutput{}
	wanted := in.RepositoryNames
	if len(wanted) == 0 {
		wanted = sortedKeys(f.Repositories)
	}
	for _, name := range wanted {
		repo, ok := f.Repositories[name]
		if !ok {
			return nil, apiError("RepositoryNotFoundException", "repository %s not found", name)
		}
		out.Repositories = append(out.Repositories, repo.detail())
	}
	return out, nil
}

func (f *Fake) CreateRepository(ctx context.Context, in *ecr.CreateRepositoryInput, _ ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ecr", "CreateRepository", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RepositoryName)
	if _, ok := f.Repositories[name]; ok {
		return nil, apiError("RepositoryAlreadyExistsException", "repository %s already exists", name)
	}
	repo := &Repository{
		Name:       name,
		ARN:        names.RepositoryARN(f.Region, f.AccountID, name),
		URI:        names.RepositoryURI(f.AccountID, f.Region, name),
		Mutability: string(in.ImageTagMutability),
		Tags:       make(map[string]string),
	}
	if in.ImageScanningConfiguration != nil {
		repo.ScanOnPush = in.ImageScanningConfiguration.ScanOnPush
	}
	for _, t := range in.Tags {
		repo.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.Repositories[name] = repo
	detail := repo.detail()
	return &ecr.CreateRepositoryOutput{Repository: &detail}, nil
}

func (f *Fake) DeleteRepository(ctx context.Context, in *ecr.DeleteRepositoryInput, _ ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ecr", "DeleteRepository", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RepositoryName)
	repo, ok := f.Repositories[name]
	if !ok {
		return nil, apiError("RepositoryNotFoundException", "repository %s not found", name)
	}
	delete(f.Repositories, name)
	detail := repo.detail()
	return &ecr.DeleteRepositoryOutput{Repository: &detail}, nil
}

func (f *Fake) GetAuthorizationToken(ctx context.Context, in *ecr.GetAuthorizationTokenInput, _ ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ecr", "GetAuthorizationToken", false); err != nil {
		return nil, err
	}
	token, endpoint := f.authorizationToken()
	return &ecr.GetAuthorizationTokenOutput{
		AuthorizationData: []ecrtypes.AuthorizationData{{
			AuthorizationToken: str(token),
			ProxyEndpoint:      str(endpoint),
			ExpiresAt:          aws.Time(time.Now().Add(12 * time.Hour)),
		}},
	}, nil
}
