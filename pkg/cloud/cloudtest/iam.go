package cloudtest

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/davidthor/scdctl/pkg/names"
)

func (r *Role) detail() *iamtypes.Role {
	return &iamtypes.Role{
		RoleName:                 str(r.Name),
		Arn:                      str(r.ARN),
		AssumeRolePolicyDocument: str(r.Trust),
		Path:                     str("/"),
		RoleId:                   str("AROA" + r.Name),
		CreateDate:               aws.Time(time.Unix(0, 0).UTC()),
	}
}

func (f *Fake) GetRole(ctx context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "GetRole", false); err != nil {
		return nil, err
	}
	role, ok := f.Roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, apiError("NoSuchEntity", "role %s not found", aws.ToString(in.RoleName))
	}
	return &iam.GetRoleOutput{Role: role.detail()}, nil
}

func (f *Fake) CreateRole(ctx context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "CreateRole", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	if _, ok := f.Roles[name]; ok {
		return nil, apiError("EntityAlreadyExists", "role %s already exists", name)
	}
	role := &Role{
		Name:  name,
		ARN:   names.RoleARN(f.AccountID, name),
		Trust: aws.ToString(in.AssumeRolePolicyDocument),
		Tags:  make(map[string]string),
	}
	for _, t := range in.Tags {
		role.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.Roles[name] = role
	return &iam.CreateRoleOutput{Role: role.detail()}, nil
}

func (f *Fake) AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "AttachRolePolicy", true); err != nil {
		return nil, err
	}
	role, ok := f.Roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, apiError("NoSuchEntity", "role %s not found", aws.ToString(in.RoleName))
	}
	if arn := aws.ToString(in.PolicyArn); !contains(role.Policies, arn) {
		role.Policies = append(role.Policies, arn)
	}
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *Fake) ListAttachedRolePolicies(ctx context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "ListAttachedRolePolicies", false); err != nil {
		return nil, err
	}
	role, ok := f.Roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, apiError("NoSuchEntity", "role %s not found", aws.ToString(in.RoleName))
	}
	out := &iam.ListAttachedRolePoliciesOutput{}
	for _, arn := range role.Policies {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{PolicyArn: str(arn)})
	}
	return out, nil
}

func (f *Fake) DetachRolePolicy(ctx context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "DetachRolePolicy", true); err != nil {
		return nil, err
	}
	role, ok := f.Roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, apiError("NoSuchEntity", "role %s not found", aws.ToString(in.RoleName))
	}
	role.Policies = remove(role.Policies, aws.ToString(in.PolicyArn))
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *Fake) DeleteRole(ctx context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("iam", "DeleteRole", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	role, ok := f.Roles[name]
	if !ok {
		return nil, apiError("NoSuchEntity", "role %s not found", name)
	}
	if len(role.Policies) > 0 {
		return nil, apiError("DeleteConflict", "role %s still has attached policies", name)
	}
	delete(f.Roles, name)
	return &iam.DeleteRoleOutput{}, nil
}

func (f *Fake) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("sts", "GetCallerIdentity", false); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: str(f.AccountID),
		Arn:     str("arn:aws:iam::" + f.AccountID + ":user/tester"),
		UserId:  str("AIDATESTER"),
	}, nil
}
